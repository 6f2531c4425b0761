package config_test

import (
	"testing"

	"github.com/reactorweb/httpd/config"
)

func TestParseArgsRequiresPort(t *testing.T) {
	if _, err := config.ParseArgs([]string{"httpd"}); err == nil {
		t.Fatal("ParseArgs with no port = nil error, want an error")
	}
}

func TestParseArgsRejectsNonNumericPort(t *testing.T) {
	if _, err := config.ParseArgs([]string{"httpd", "notaport"}); err == nil {
		t.Fatal("ParseArgs with non-numeric port = nil error, want an error")
	}
}

func TestParseArgsAppliesDefaults(t *testing.T) {
	cfg, err := config.ParseArgs([]string{"httpd", "8080"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.WorkerCount != config.DefaultWorkerCount {
		t.Errorf("WorkerCount = %d, want %d", cfg.WorkerCount, config.DefaultWorkerCount)
	}
	if cfg.QueueCapacity != config.DefaultQueueCapacity {
		t.Errorf("QueueCapacity = %d, want %d", cfg.QueueCapacity, config.DefaultQueueCapacity)
	}
}

func TestStoreGetSetAndReload(t *testing.T) {
	cfg, _ := config.ParseArgs([]string{"httpd", "8080"})
	s := config.NewStore(cfg)

	if got := s.Get("worker_count"); got != config.DefaultWorkerCount {
		t.Fatalf("Get(worker_count) = %d, want %d", got, config.DefaultWorkerCount)
	}

	reloaded := false
	s.OnReload(func() { reloaded = true })
	s.Set("worker_count", 16)

	if got := s.Get("worker_count"); got != 16 {
		t.Fatalf("Get(worker_count) after Set = %d, want 16", got)
	}
	if !reloaded {
		t.Fatal("OnReload listener was not invoked by Set")
	}
}
