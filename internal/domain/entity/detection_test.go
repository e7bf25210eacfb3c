package entity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectionBounds(t *testing.T) {
	d := Detection{X: 50, Y: 50, Width: 20, Height: 10}
	x, y, w, h := d.Bounds()
	require.Equal(t, 40, x)
	require.Equal(t, 45, y)
	require.Equal(t, 20, w)
	require.Equal(t, 10, h)
}

func TestDetectionBounds_RoundsHalfUp(t *testing.T) {
	d := Detection{X: 0.5, Y: 10, Width: 2, Height: 3}
	x, y, w, h := d.Bounds()
	// 0.5-1 = -0.5 -> 0, 10-1.5 = 8.5 -> 9
	require.Equal(t, 0, x)
	require.Equal(t, 9, y)
	require.Equal(t, 2, w)
	require.Equal(t, 3, h)
}

func TestClassifyDefect(t *testing.T) {
	cases := map[string]DefectType{
		"pothole":            DefectPothole,
		"Pothole":            DefectPothole,
		"deep-pothole":       DefectPothole,
		"Alligator cracking": DefectAlligatorCracking,
		"alligator":          DefectAlligatorCracking,
		"crack":              DefectCrack,
		" Crack ":            DefectCrack,
		"weathering":         DefectWeathering,
		"longitudinal crack": DefectUnknown,
		"":                   DefectUnknown,
	}
	for class, want := range cases {
		require.Equal(t, want, ClassifyDefect(class), class)
	}
}

func TestMergeDetections_KeepsOrder(t *testing.T) {
	a := []Detection{{Class: "pothole"}, {Class: "Pothole"}}
	b := []Detection{{Class: "crack"}}
	set := MergeDetections(a, b)
	require.Len(t, set, 3)
	require.Equal(t, "pothole", set[0].Class)
	require.Equal(t, "Pothole", set[1].Class)
	require.Equal(t, "crack", set[2].Class)

	require.Empty(t, MergeDetections(nil, nil))
}

func TestDetectionValidate(t *testing.T) {
	ok := Detection{Class: "crack", Confidence: 0.7, X: 1, Y: 1, Width: 2, Height: 2}
	require.NoError(t, ok.Validate())
	edge := Detection{Class: "crack", Confidence: 0.7, X: -MaxCoordinate, Y: MaxCoordinate, Width: MaxCoordinate, Height: 1}
	require.NoError(t, edge.Validate())

	bad := []Detection{
		{Class: "", Confidence: 0.5},
		{Class: "crack", Confidence: 1.5},
		{Class: "crack", Confidence: -0.1},
		{Class: "crack", Confidence: 0.5, Width: -1},
		{Class: "crack", Confidence: 0.5, X: math.NaN()},
		{Class: "crack", Confidence: 0.5, Height: math.Inf(1)},
		{Class: "crack", Confidence: 0.5, Width: 1e300},
		{Class: "crack", Confidence: 0.5, X: -2e7},
		{Class: "crack", Confidence: 0.5, Y: 1e19},
	}
	for _, d := range bad {
		require.Error(t, d.Validate(), "%+v", d)
	}
}

func TestDetectionLabel(t *testing.T) {
	d := Detection{Class: "pothole", Confidence: 0.25}
	require.Equal(t, "pothole 25.0%", d.Label())
}

func TestStatusForScore_Boundaries(t *testing.T) {
	require.Equal(t, StatusGood, StatusForScore(100))
	require.Equal(t, StatusGood, StatusForScore(80))
	require.Equal(t, StatusModerate, StatusForScore(79))
	require.Equal(t, StatusModerate, StatusForScore(50))
	require.Equal(t, StatusCritical, StatusForScore(49))
	require.Equal(t, StatusCritical, StatusForScore(0))
}
