package config

import (
	"testing"
)

// TestTimeoutRelationships guards the orderings the pipeline relies on.
func TestTimeoutRelationships(t *testing.T) {
	t.Parallel()

	// Three backend attempts plus backoff must fit inside one command.
	worstBackend := 3*BackendRequest + BackendRetryInitial + 2*BackendRetryInitial
	if worstBackend >= CommandHandling {
		t.Errorf("backend worst case %v must be below CommandHandling %v", worstBackend, CommandHandling)
	}
	if BackendRetryMax < BackendRetryInitial {
		t.Errorf("BackendRetryMax %v < BackendRetryInitial %v", BackendRetryMax, BackendRetryInitial)
	}
	if HTTPIdle <= HTTPRead {
		t.Errorf("HTTPIdle %v should exceed HTTPRead %v", HTTPIdle, HTTPRead)
	}
	if RetryQueueInterval >= TransportSend*3 {
		t.Errorf("RetryQueueInterval %v unexpectedly long", RetryQueueInterval)
	}
}
