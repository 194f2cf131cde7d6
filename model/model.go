package model

import (
	"strconv"
	"time"
)

// Holds all external facing types and constants.

type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway               = 1
	RouteTypeRail                 = 2
	RouteTypeBus                  = 3
	RouteTypeFerry                = 4
	RouteTypeCable                = 5
	RouteTypeAerial               = 6
	RouteTypeFunicular            = 7
	RouteTypeTrolleybus           = 11
	RouteTypeMonorail             = 12
)

type Stop struct {
	ID   string
	Code string
	Name string
	Lat  float64
	Lon  float64
}

type Route struct {
	ID        string
	ShortName string
	LongName  string
	Type      RouteType
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	DirectionID int8
}

type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType int8
}

// Times are "HHMMSS" strings, as GTFS allows hours >= 24 for trips
// running past midnight.
type StopTime struct {
	TripID       string
	StopID       string
	StopSequence uint32
	Arrival      string
	Departure    string
}

func (st *StopTime) ArrivalTime() time.Duration {
	return time.Duration(HHMMSSToSeconds(st.Arrival)) * time.Second
}

func (st *StopTime) DepartureTime() time.Duration {
	return time.Duration(HHMMSSToSeconds(st.Departure)) * time.Second
}

func (st *StopTime) ArrivalSec() int {
	return HHMMSSToSeconds(st.Arrival)
}

func (st *StopTime) DepartureSec() int {
	return HHMMSSToSeconds(st.Departure)
}

// Converts an "HHMMSS" time to seconds past midnight. Hours may
// exceed 23. Returns 0 on malformed input, matching how broken
// stop_times are treated elsewhere.
func HHMMSSToSeconds(s string) int {
	if len(s) != 6 {
		return 0
	}
	h, errH := strconv.Atoi(s[0:2])
	m, errM := strconv.Atoi(s[2:4])
	sec, errS := strconv.Atoi(s[4:6])
	if errH != nil || errM != nil || errS != nil {
		return 0
	}
	return h*3600 + m*60 + sec
}

// Inverse of HHMMSSToSeconds.
func SecondsToHHMMSS(sec int) string {
	if sec < 0 {
		sec = 0
	}
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return pad2(h) + pad2(m) + pad2(s)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
