package webhook

import "testing"

func TestComputeDelayExponential(t *testing.T) {
	tests := []struct {
		retryCount int
		want       int
	}{
		{retryCount: 0, want: 5},
		{retryCount: 1, want: 10},
		{retryCount: 2, want: 20},
		{retryCount: 3, want: 40},
	}

	for _, tt := range tests {
		if got := ComputeDelay(tt.retryCount, 5, true, 0); got != tt.want {
			t.Fatalf("ComputeDelay(%d, 5, true, 0) = %d, want %d", tt.retryCount, got, tt.want)
		}
	}
}

func TestComputeDelayConstant(t *testing.T) {
	for _, retryCount := range []int{0, 1, 2, 5, 10} {
		if got := ComputeDelay(retryCount, 5, false, 0); got != 5 {
			t.Fatalf("ComputeDelay(%d, 5, false, 0) = %d, want 5", retryCount, got)
		}
	}
}

func TestComputeDelayCap(t *testing.T) {
	if got := ComputeDelay(10, 5, true, 3600); got != 3600 {
		t.Fatalf("capped delay = %d, want 3600", got)
	}
	// Cap disabled: growth continues.
	if got := ComputeDelay(10, 5, true, 0); got != 5*1024 {
		t.Fatalf("uncapped delay = %d, want %d", got, 5*1024)
	}
	// Negative retry counts clamp to the base.
	if got := ComputeDelay(-1, 5, true, 0); got != 5 {
		t.Fatalf("ComputeDelay(-1) = %d, want 5", got)
	}
}
