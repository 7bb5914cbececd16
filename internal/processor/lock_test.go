package processor

import (
	"strings"
	"testing"
)

func TestAcquireEventLock_EmptyOwnerID(t *testing.T) {
	_, err := AcquireEventLock(nil, 1, "")
	if err == nil {
		t.Fatal("expected error for empty ownerID")
	}
	if !strings.Contains(err.Error(), "ownerID is required") {
		t.Errorf("error = %q", err)
	}
}
