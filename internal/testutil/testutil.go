// Package testutil provides shared test utilities and fixtures.
//
// It centralises the assertion helpers and raw detector tensor builders used
// across the crowd layer tests. It must not import any crowd package so that
// in-package tests of those layers can use it without import cycles.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertNear fails the test if got and want differ by more than tol.
func AssertNear(t testing.TB, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v (±%v)", name, got, want, tol)
	}
}

// Anchor describes one anchor slot of a synthetic detector output, in
// 0-640 model space.
type Anchor struct {
	CX, CY, W, H float32
	Class        int     // class index receiving Score
	Score        float32 // score written for Class; other classes stay 0
}

// COCOClasses is the class count of a standard COCO detector head.
const COCOClasses = 80

// YOLOTensor builds an attribute-major [1, 4+numClasses, N] tensor from the
// given anchors. It returns the flat data and its shape.
func YOLOTensor(numClasses int, anchors ...Anchor) ([]float32, []int) {
	n := len(anchors)
	attrs := 4 + numClasses
	data := make([]float32, attrs*n)
	for i, a := range anchors {
		data[0*n+i] = a.CX
		data[1*n+i] = a.CY
		data[2*n+i] = a.W
		data[3*n+i] = a.H
		if a.Class >= 0 && a.Class < numClasses {
			data[(4+a.Class)*n+i] = a.Score
		}
	}
	return data, []int{1, attrs, n}
}
