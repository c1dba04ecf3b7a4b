package types

import (
	"math"
	"testing"
)

func TestGeographyPointScanText(t *testing.T) {
	var p GeographyPoint
	if err := p.Scan("SRID=4326;POINT(3.3792 6.5244)"); err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}
	if p.Lng != 3.3792 || p.Lat != 6.5244 {
		t.Fatalf("unexpected point %+v", p)
	}
}

func TestGeographyPointScanRejectsGarbage(t *testing.T) {
	var p GeographyPoint
	if err := p.Scan("LINESTRING(0 0, 1 1)"); err == nil {
		t.Fatal("expected non-point geometry to fail")
	}
}

func TestDistanceKM(t *testing.T) {
	lagos := GeographyPoint{Lat: 6.5244, Lng: 3.3792}
	ikeja := GeographyPoint{Lat: 6.6018, Lng: 3.3515}

	got := lagos.DistanceKM(ikeja)
	if math.Abs(got-9.1) > 0.5 {
		t.Fatalf("expected roughly 9.1km, got %f", got)
	}

	if d := lagos.DistanceKM(lagos); d != 0 {
		t.Fatalf("expected zero distance to self, got %f", d)
	}
}
