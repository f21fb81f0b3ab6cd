package logging

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitSetsLevel(t *testing.T) {
	if err := Init("debug", "console"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("unexpected level: %v", log.GetLevel())
	}
}

func TestInitRejectsInvalidLevel(t *testing.T) {
	if err := Init("loud", "console"); err == nil {
		t.Fatal("expected error for invalid level")
	}
}
