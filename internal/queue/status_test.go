package queue

import "testing"

func TestBatchStateRecompute(t *testing.T) {
	tests := []struct {
		name string
		st   BatchStatus
		want BatchState
	}{
		{"empty", BatchStatus{}, BatchPending},
		{"all pending", BatchStatus{TotalItems: 3, PendingCount: 3}, BatchPending},
		{"some processing", BatchStatus{TotalItems: 3, PendingCount: 2, ProcessingCount: 1}, BatchProcessing},
		{"partially done", BatchStatus{TotalItems: 3, PendingCount: 2, CompletedItems: 1, SuccessCount: 1}, BatchProcessing},
		{"all ok", BatchStatus{TotalItems: 3, CompletedItems: 3, SuccessCount: 3}, BatchCompleted},
		{"failures under threshold", BatchStatus{TotalItems: 4, CompletedItems: 4, SuccessCount: 2, FailureCount: 2}, BatchCompleted},
		{"failures over threshold", BatchStatus{TotalItems: 4, CompletedItems: 4, SuccessCount: 1, FailureCount: 3}, BatchFailed},
		{"cancelled is sticky", BatchStatus{TotalItems: 2, CompletedItems: 2, SuccessCount: 2, State: BatchCancelled}, BatchCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.st.recompute(0.5)
			if tt.st.State != tt.want {
				t.Fatalf("state = %s, want %s", tt.st.State, tt.want)
			}
		})
	}
}

func TestBatchStateTerminal(t *testing.T) {
	for st, want := range map[BatchState]bool{
		BatchPending:    false,
		BatchProcessing: false,
		BatchCompleted:  true,
		BatchFailed:     true,
		BatchCancelled:  true,
	} {
		if st.Terminal() != want {
			t.Fatalf("%s.Terminal() = %v, want %v", st, !want, want)
		}
	}
}
