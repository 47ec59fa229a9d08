package risk

import "testing"

func TestCheckLimit_WithinLimits(t *testing.T) {
	limiter := NewLimiter(1000, 5000)

	if err := limiter.CheckLimit("AAPL", 100, nil); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_PerSymbolExceeded(t *testing.T) {
	limiter := NewLimiter(1000, 5000)

	// Existing position of 950 + new 100 = 1050 > 1000.
	existing := map[string]int64{"AAPL": 950}

	if err := limiter.CheckLimit("AAPL", 100, existing); err != ErrPerSymbolLimitExceeded {
		t.Errorf("expected ErrPerSymbolLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_PerSymbolExactlyAtLimit(t *testing.T) {
	limiter := NewLimiter(1000, 5000)

	existing := map[string]int64{"AAPL": 900}

	if err := limiter.CheckLimit("AAPL", 100, existing); err != nil {
		t.Errorf("position exactly at limit should pass, got %v", err)
	}
}

func TestCheckLimit_TotalExceeded(t *testing.T) {
	limiter := NewLimiter(1000, 2000)

	existing := map[string]int64{
		"AAPL": 800,
		"MSFT": 800,
		"TSLA": 300,
	}

	// 800+800+300 existing + 200 new = 2100 > 2000.
	if err := limiter.CheckLimit("NVDA", 200, existing); err != ErrTotalLimitExceeded {
		t.Errorf("expected ErrTotalLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_SellAlwaysPasses(t *testing.T) {
	limiter := NewLimiter(10, 10)

	existing := map[string]int64{"AAPL": 10}

	if err := limiter.CheckLimit("AAPL", -5, existing); err != nil {
		t.Errorf("sell delta should pass, got %v", err)
	}
}

func TestCheckLimit_ZeroLimitsDisabled(t *testing.T) {
	limiter := NewLimiter(0, 0)

	existing := map[string]int64{"AAPL": 1 << 40}

	if err := limiter.CheckLimit("AAPL", 1<<40, existing); err != nil {
		t.Errorf("zero limits should disable checks, got %v", err)
	}
}

func TestCheckLimit_NilLimiter(t *testing.T) {
	var limiter *Limiter

	if err := limiter.CheckLimit("AAPL", 100, nil); err != nil {
		t.Errorf("nil limiter should pass, got %v", err)
	}
}
