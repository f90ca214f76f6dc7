package model

import (
	"math"
	"testing"
)

func TestDistanceMetersKnownPair(t *testing.T) {
	paris := LatLng{Lat: 48.8566, Lng: 2.3522}
	london := LatLng{Lat: 51.5074, Lng: -0.1278}
	got := paris.DistanceMeters(london)
	// great-circle distance Paris-London is about 344 km
	if math.Abs(got-344000) > 2000 {
		t.Fatalf("distance %f out of expected range", got)
	}
}

func TestDistanceMetersZero(t *testing.T) {
	p := LatLng{Lat: 48.8566, Lng: 2.3522}
	if d := p.DistanceMeters(p); d != 0 {
		t.Fatalf("distance to self = %f", d)
	}
}

func TestDistanceMetersSymmetric(t *testing.T) {
	a := LatLng{Lat: 10, Lng: 20}
	b := LatLng{Lat: 10.001, Lng: 20.001}
	if d1, d2 := a.DistanceMeters(b), b.DistanceMeters(a); math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("asymmetric distances %f vs %f", d1, d2)
	}
}

func TestDistanceMetersShortRange(t *testing.T) {
	// ~111m per 0.001 degree of latitude
	a := LatLng{Lat: 48.8566, Lng: 2.3522}
	b := LatLng{Lat: 48.8576, Lng: 2.3522}
	got := a.DistanceMeters(b)
	if got < 100 || got > 120 {
		t.Fatalf("expected ~111m, got %f", got)
	}
}
