package reducer

import "testing"

func TestCountingReducerIgnoresIncomingValue(t *testing.T) {
	count := CountingReducer()
	got := 0
	for _, incoming := range []int{1, 99, -5, 0} {
		got = count(got, incoming)
	}
	if got != 4 {
		t.Fatalf("got %d, want 4", got)
	}
}

func TestCountingReducerDistinctFromSum(t *testing.T) {
	count := CountingReducer()
	sum := Sum[int]

	countResult := count(count(0, 10), 20)
	sumResult := sum(sum(0, 10), 20)

	if countResult != 2 {
		t.Fatalf("CountingReducer: got %d, want 2", countResult)
	}
	if sumResult != 30 {
		t.Fatalf("Sum: got %d, want 30", sumResult)
	}
}
