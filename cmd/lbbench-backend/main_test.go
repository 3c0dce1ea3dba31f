package main

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, "127.0.0.1:0", zaptest.NewLogger(t))
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_InvalidAddress(t *testing.T) {
	err := serve(context.Background(), "127.0.0.1:-1", zaptest.NewLogger(t))
	if err == nil {
		t.Fatal("expected error for an invalid address")
	}
}
