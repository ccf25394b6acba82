package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestBudgetSpend(t *testing.T) {
	_, client := testClient(t)
	budget, err := NewBudget(client, "test:budget", 3)
	if err != nil {
		t.Fatalf("NewBudget: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !budget.Spend(ctx, "abc_123") {
			t.Fatalf("spend %d should pass", i+1)
		}
	}
	if budget.Spend(ctx, "abc_123") {
		t.Fatal("spend past the budget should be blocked")
	}
	if !budget.Spend(ctx, "abc_456") {
		t.Fatal("other keys should have their own budget")
	}
}

func TestBudgetNeverResets(t *testing.T) {
	m, client := testClient(t)
	budget, err := NewBudget(client, "test:budget", 1)
	if err != nil {
		t.Fatalf("NewBudget: %v", err)
	}

	ctx := context.Background()
	if !budget.Spend(ctx, "k") {
		t.Fatal("first spend should pass")
	}
	m.FastForward(1000 * time.Hour)
	if budget.Spend(ctx, "k") {
		t.Fatal("budget must not refill over time")
	}
}

func TestBudgetEmptyKey(t *testing.T) {
	_, client := testClient(t)
	budget, err := NewBudget(client, "test:budget", 1)
	if err != nil {
		t.Fatalf("NewBudget: %v", err)
	}
	if budget.Spend(context.Background(), "  ") {
		t.Fatal("blank keys should be rejected")
	}
}
