package leads

import "testing"

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	all := []Status{StatusPending, StatusDialing, StatusQualified, StatusNotInterested, StatusFailed}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusDialing}:       true,
		{StatusDialing, StatusQualified}:     true,
		{StatusDialing, StatusNotInterested}: true,
		{StatusDialing, StatusFailed}:        true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}
