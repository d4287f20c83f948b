package tts

import "testing"

// run 依次触发事件，返回最终轨迹。
func run(t *testing.T, mode Mode, events ...FrontendEvent) *FrontendTrace {
	t.Helper()
	tr := NewFrontendTrace(mode)
	for _, e := range events {
		if _, err := tr.Fire(e); err != nil {
			t.Fatalf("mode=%s: %v", mode, err)
		}
	}
	return tr
}

func TestInitialState(t *testing.T) {
	tests := []struct {
		mode Mode
		want FrontendState
	}{
		{ModeAutomatic, StateTryDictionary},
		{ModeDictionaryOnly, StateTryDictionary},
		{ModePhoneticFallbackOnly, StateTryPhoneticFallback},
	}
	for _, tt := range tests {
		if got := InitialState(tt.mode); got != tt.want {
			t.Errorf("InitialState(%s) = %s, want %s", tt.mode, got, tt.want)
		}
	}
}

func TestAutomatic_DictionaryHitNeverFallsBack(t *testing.T) {
	tr := run(t, ModeAutomatic, EventDictionaryHit, EventTokensMatched)
	if tr.Current() != StateResolved {
		t.Fatalf("expected Resolved, got %s", tr.Current())
	}
	if tr.Visited(StateTryPhoneticFallback) {
		t.Errorf("dictionary hit must not visit phonetic fallback: %v", tr.States)
	}
	if tr.Status() != 0 {
		t.Errorf("resolved trace should have status 0, got %d", tr.Status())
	}
}

func TestAutomatic_DictionaryMissFallsBackExactlyOnce(t *testing.T) {
	tr := run(t, ModeAutomatic, EventDictionaryMiss, EventPhonemesReady, EventTokensMatched)
	if tr.Current() != StateResolved {
		t.Fatalf("expected Resolved, got %s", tr.Current())
	}
	n := 0
	for _, s := range tr.States {
		if s == StateTryPhoneticFallback {
			n++
		}
	}
	if n != 1 {
		t.Errorf("expected exactly one fallback attempt, got %d (%v)", n, tr.States)
	}
}

func TestDictionaryOnly_MissFails(t *testing.T) {
	tr := run(t, ModeDictionaryOnly, EventDictionaryMiss)
	if tr.Current() != StateFailed || tr.Failure != KindDictionaryMiss {
		t.Fatalf("expected Failed(DictionaryMiss), got %s/%s", tr.Current(), tr.Failure)
	}
	if tr.Status() != StatusDictionaryMiss {
		t.Errorf("expected status %d, got %d", StatusDictionaryMiss, tr.Status())
	}
}

func TestDictionaryOnly_NeverEntersFallback(t *testing.T) {
	for _, e := range []FrontendEvent{EventPhonemesReady, EventDataMissing, EventFallbackDisabled} {
		if _, ok := Step(ModeDictionaryOnly, StateTryPhoneticFallback, e); ok {
			t.Errorf("lexicon_first must not define fallback transition on %s", e)
		}
	}
}

func TestPhoneticOnly_SkipsDictionary(t *testing.T) {
	if _, ok := Step(ModePhoneticFallbackOnly, StateTryDictionary, EventDictionaryHit); ok {
		t.Errorf("espeak_only must not define dictionary transitions")
	}
	tr := run(t, ModePhoneticFallbackOnly, EventPhonemesReady, EventTokensMatched)
	if tr.Visited(StateTryDictionary) {
		t.Errorf("espeak_only must not visit dictionary: %v", tr.States)
	}
}

func TestFallbackFailures(t *testing.T) {
	tests := []struct {
		event FrontendEvent
		kind  Kind
		code  int
	}{
		{EventDataMissing, KindDataMissing, StatusDataMissing},
		{EventFallbackDisabled, KindFallbackDisabled, StatusFallbackDisabled},
		{EventFallbackInitFailed, KindFallbackInitFailed, StatusFallbackInitFailed},
		{EventPhonemesEmpty, KindEmptyPhonemes, StatusEmptyPhonemes},
	}
	for _, mode := range []Mode{ModeAutomatic, ModePhoneticFallbackOnly} {
		for _, tt := range tests {
			tr := NewFrontendTrace(mode)
			if mode == ModeAutomatic {
				if _, err := tr.Fire(EventDictionaryMiss); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := tr.Fire(tt.event); err != nil {
				t.Fatalf("mode=%s event=%s: %v", mode, tt.event, err)
			}
			if tr.Failure != tt.kind || tr.Status() != tt.code {
				t.Errorf("mode=%s event=%s: got %s/%d, want %s/%d",
					mode, tt.event, tr.Failure, tr.Status(), tt.kind, tt.code)
			}
		}
	}
}

func TestTokenMap_MissFails(t *testing.T) {
	tr := run(t, ModeAutomatic, EventDictionaryHit, EventTokensMissing)
	if tr.Failure != KindTokenMiss {
		t.Errorf("expected TokenMiss, got %s", tr.Failure)
	}
}

func TestTrace_RejectsEventsAfterTerminal(t *testing.T) {
	tr := run(t, ModeDictionaryOnly, EventDictionaryMiss)
	if _, err := tr.Fire(EventPhonemesReady); err == nil {
		t.Errorf("expected error after terminal state")
	}
	if len(tr.States) != 2 {
		t.Errorf("trace should not grow after terminal state: %v", tr.States)
	}
}

func TestCheckPreconditions(t *testing.T) {
	cfg := testConfig()

	cfg.Mode = ModePhoneticFallbackOnly
	cfg.DataDir = ""
	if err := CheckPreconditions(cfg); err == nil {
		t.Errorf("espeak_only with empty data dir should fail")
	}

	cfg.DataDir = "/data"
	if err := CheckPreconditions(cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.Mode = ModeAutomatic
	cfg.DataDir = ""
	if err := CheckPreconditions(cfg); err != nil {
		t.Errorf("auto mode with empty data dir is allowed, got %v", err)
	}

	cfg.Mode = Mode(7)
	if err := CheckPreconditions(cfg); err == nil {
		t.Errorf("invalid mode should fail")
	}
}

func TestInterpret(t *testing.T) {
	if s, _, ok := Interpret(22050); !ok || s != StateResolved {
		t.Errorf("positive sample rate should be Resolved")
	}
	if s, k, ok := Interpret(StatusTokenMiss); !ok || s != StateFailed || k != KindTokenMiss {
		t.Errorf("TokenMiss should interpret as frontend failure, got %s %s %v", s, k, ok)
	}
	if _, k, ok := Interpret(StatusAudioWriteFailed); ok || k != KindAudioWriteFailed {
		t.Errorf("runtime failure should not be a frontend state, got %s %v", k, ok)
	}
}
