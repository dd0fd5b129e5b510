package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-speaky/internal/log"
	"github.com/teslashibe/go-speaky/pkg/notify"
	"github.com/teslashibe/go-speaky/pkg/realtime"
	"github.com/teslashibe/go-speaky/pkg/tools"
	"github.com/teslashibe/go-speaky/pkg/wallet"
)

// recordingSender captures events instead of transmitting them.
type recordingSender struct {
	mu     sync.Mutex
	events []realtime.Event
	err    error
}

func (s *recordingSender) Send(ev realtime.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSender) SendSequence(ctx context.Context, gap time.Duration, events ...realtime.Event) error {
	for i, ev := range events {
		if i > 0 {
			if err := sleep(ctx, gap); err != nil {
				return err
			}
		}
		if err := s.Send(ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *recordingSender) Events() []realtime.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]realtime.Event(nil), s.events...)
}

// fakeWallet is a connected wallet with a fixed balance.
type fakeWallet struct {
	mu        sync.Mutex
	connected bool
	sends     int
}

func (w *fakeWallet) State() wallet.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return wallet.State{}
	}
	return wallet.State{Connected: true, Address: "0x1234567890abcdef1234567890abcdef12345678"}
}

func (w *fakeWallet) Balance(ctx context.Context) (*wallet.Balance, error) {
	return &wallet.Balance{Wei: big.NewInt(2e18), ETH: "2.0", Formatted: "2.0000 ETH"}, nil
}

func (w *fakeWallet) SendTo(ctx context.Context, amount, recipient string) (*wallet.TxResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sends++
	return &wallet.TxResult{Hash: "0xfeed", ResolvedAddress: recipient, OriginalInput: recipient}, nil
}

func (w *fakeWallet) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = true
	return nil
}

func (w *fakeWallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.InitGap = 0
	cfg.OutputGap = 0
	cfg.Logger = log.Discard()
	return cfg
}

func responseDone(items ...map[string]any) realtime.Event {
	output := make([]any, len(items))
	for i, it := range items {
		output[i] = it
	}
	return realtime.NewEvent(realtime.TypeResponseDone, map[string]any{
		"response": map[string]any{"output": output},
	})
}

func functionCall(name, callID, args string) map[string]any {
	return map[string]any{
		"type":      realtime.ItemFunctionCall,
		"name":      name,
		"call_id":   callID,
		"arguments": args,
	}
}

func decodeOutput(t *testing.T, ev realtime.Event) (string, tools.Result) {
	t.Helper()
	item, ok := ev.Payload["item"].(map[string]any)
	if !ok {
		t.Fatalf("event has no item: %+v", ev)
	}
	if item["type"] != realtime.ItemFunctionCallOutput {
		t.Fatalf("item type = %v", item["type"])
	}
	var res tools.Result
	if err := json.Unmarshal([]byte(item["output"].(string)), &res); err != nil {
		t.Fatalf("output is not a result: %v", err)
	}
	callID, _ := item["call_id"].(string)
	return callID, res
}

func TestInitializer(t *testing.T) {
	registry := tools.DefaultRegistry()

	t.Run("configure sequence", func(t *testing.T) {
		sender := &recordingSender{}
		init := NewInitializer(sender, registry, testConfig())

		init.Handle(realtime.NewEvent(realtime.TypeSessionCreated, nil))
		init.Wait()

		events := sender.Events()
		if len(events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(events))
		}
		if events[0].Type != realtime.TypeSessionUpdate {
			t.Errorf("first event = %s", events[0].Type)
		}
		session := events[0].Payload["session"].(map[string]any)
		if session["tool_choice"] != "auto" || session["type"] != "realtime" {
			t.Errorf("session = %v", session)
		}
		if len(session["tools"].([]any)) != 5 {
			t.Errorf("tools = %v", session["tools"])
		}
		if session["instructions"] != tools.SystemInstructions("") {
			t.Error("instructions do not match the default prompt")
		}

		item := events[1].Payload["item"].(map[string]any)
		if events[1].Type != realtime.TypeConversationItemCreate || item["role"] != "system" {
			t.Errorf("greeting = %+v", events[1])
		}
		if events[2].Type != realtime.TypeResponseCreate {
			t.Errorf("last event = %s", events[2].Type)
		}
		if !init.Configured() {
			t.Error("expected configured")
		}
	})

	t.Run("ignores other events", func(t *testing.T) {
		sender := &recordingSender{}
		init := NewInitializer(sender, registry, testConfig())
		init.Handle(realtime.NewEvent(realtime.TypeResponseDone, nil))
		init.Wait()
		if len(sender.Events()) != 0 || init.Configured() {
			t.Error("initializer reacted to response.done")
		}
	})

	t.Run("duplicate signals configure once", func(t *testing.T) {
		sender := &recordingSender{}
		init := NewInitializer(sender, registry, testConfig())

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				init.Handle(realtime.NewEvent(realtime.TypeSessionCreated, nil))
			}()
		}
		wg.Wait()
		init.Wait()

		updates := 0
		for _, ev := range sender.Events() {
			if ev.Type == realtime.TypeSessionUpdate {
				updates++
			}
		}
		if updates != 1 {
			t.Errorf("session.update sent %d times", updates)
		}
	})

	t.Run("reset rearms and cancels pending greeting", func(t *testing.T) {
		sender := &recordingSender{}
		cfg := testConfig()
		cfg.InitGap = time.Hour
		init := NewInitializer(sender, registry, cfg)

		init.Handle(realtime.NewEvent(realtime.TypeSessionCreated, nil))
		deadline := time.Now().Add(time.Second)
		for len(sender.Events()) == 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		init.Reset()
		init.Wait()

		if got := len(sender.Events()); got != 1 {
			t.Fatalf("expected only session.update, got %d events", got)
		}
		if init.Configured() {
			t.Error("reset should clear the guard")
		}
	})

	t.Run("no greeting", func(t *testing.T) {
		sender := &recordingSender{}
		cfg := testConfig()
		cfg.Greeting = ""
		init := NewInitializer(sender, registry, cfg)
		init.Handle(realtime.NewEvent(realtime.TypeSessionCreated, nil))
		init.Wait()
		if len(sender.Events()) != 1 {
			t.Errorf("events = %d", len(sender.Events()))
		}
	})
}

func TestDispatcher(t *testing.T) {
	t.Run("known tools answer in call order per call", func(t *testing.T) {
		sender := &recordingSender{}
		rec := &notify.Recorder{}
		env := &tools.Env{Wallet: &fakeWallet{connected: true}, Notifier: rec, Logger: log.Discard()}
		d := NewDispatcher(sender, tools.DefaultRegistry(), env, testConfig())

		d.Handle(responseDone(
			functionCall(tools.NameCheckWalletConnection, "call_1", "{}"),
			map[string]any{"type": "message", "role": "assistant"},
			functionCall(tools.NameShowToast, "call_2", `{"title":"Hi","type":"info"}`),
		))
		d.Wait()

		events := sender.Events()
		if len(events) != 4 {
			t.Fatalf("expected 4 events, got %d", len(events))
		}

		results := map[string]tools.Result{}
		for i := 0; i < len(events); i += 2 {
			callID, res := decodeOutput(t, events[i])
			results[callID] = res
			if events[i+1].Type != realtime.TypeResponseCreate {
				t.Errorf("event %d = %s, want response.create", i+1, events[i+1].Type)
			}
		}
		if !results["call_1"].Success || !results["call_2"].Success {
			t.Errorf("results = %+v", results)
		}
		if len(rec.Toasts()) != 1 {
			t.Errorf("toasts = %+v", rec.Toasts())
		}
	})

	t.Run("unknown tool is dropped", func(t *testing.T) {
		sender := &recordingSender{}
		d := NewDispatcher(sender, tools.DefaultRegistry(), &tools.Env{}, testConfig())
		d.Handle(responseDone(functionCall("launch_rocket", "call_x", "{}")))
		d.Wait()
		if len(sender.Events()) != 0 {
			t.Errorf("unknown tool produced %d events", len(sender.Events()))
		}
	})

	t.Run("unparsable arguments", func(t *testing.T) {
		sender := &recordingSender{}
		env := &tools.Env{Wallet: &fakeWallet{connected: true}, Logger: log.Discard()}
		d := NewDispatcher(sender, tools.DefaultRegistry(), env, testConfig())
		d.Handle(responseDone(functionCall(tools.NameSendEthereum, "call_3", "{not json")))
		d.Wait()

		_, res := decodeOutput(t, sender.Events()[0])
		if res.ErrorCode != tools.CodeInvalidAmount {
			t.Errorf("code = %q", res.ErrorCode)
		}
	})

	t.Run("handler error and panic", func(t *testing.T) {
		noParams := tools.Definition{Type: "function", Name: "boom", Parameters: tools.Parameters{Type: "object"}}
		panicky := tools.Definition{Type: "function", Name: "panicky", Parameters: tools.Parameters{Type: "object"}}
		registry, err := tools.NewRegistry(
			tools.Tool{Definition: noParams, Handler: func(context.Context, map[string]any, *tools.Env) (tools.Result, error) {
				return tools.Result{}, errors.New("rpc exploded")
			}},
			tools.Tool{Definition: panicky, Handler: func(context.Context, map[string]any, *tools.Env) (tools.Result, error) {
				panic("nil map")
			}},
		)
		if err != nil {
			t.Fatalf("registry: %v", err)
		}

		sender := &recordingSender{}
		d := NewDispatcher(sender, registry, &tools.Env{}, testConfig())
		d.Handle(responseDone(functionCall("boom", "c1", "{}"), functionCall("panicky", "c2", "{}")))
		d.Wait()

		results := map[string]tools.Result{}
		for _, ev := range sender.Events() {
			if ev.Type == realtime.TypeConversationItemCreate {
				id, res := decodeOutput(t, ev)
				results[id] = res
			}
		}
		if r := results["c1"]; r.Success || r.ErrorCode != tools.CodeExecutionError || r.Message != "rpc exploded" {
			t.Errorf("c1 = %+v", r)
		}
		if r := results["c2"]; r.Success || r.ErrorCode != tools.CodeExecutionError {
			t.Errorf("c2 = %+v", r)
		}
	})

	t.Run("calls run concurrently", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan string, 2)
		blocking := func(name string) tools.Tool {
			return tools.Tool{
				Definition: tools.Definition{Type: "function", Name: name, Parameters: tools.Parameters{Type: "object"}},
				Handler: func(context.Context, map[string]any, *tools.Env) (tools.Result, error) {
					started <- name
					<-release
					return tools.Success("ok", nil), nil
				},
			}
		}
		registry, _ := tools.NewRegistry(blocking("a"), blocking("b"))

		sender := &recordingSender{}
		d := NewDispatcher(sender, registry, &tools.Env{}, testConfig())
		d.Handle(responseDone(functionCall("a", "1", "{}"), functionCall("b", "2", "{}")))

		for i := 0; i < 2; i++ {
			select {
			case <-started:
			case <-time.After(time.Second):
				t.Fatal("second call did not start while the first was blocked")
			}
		}
		close(release)
		d.Wait()
		if len(sender.Events()) != 4 {
			t.Errorf("events = %d", len(sender.Events()))
		}
	})

	t.Run("result hooks", func(t *testing.T) {
		sender := &recordingSender{}
		d := NewDispatcher(sender, tools.DefaultRegistry(), &tools.Env{}, testConfig())

		var mu sync.Mutex
		var seen []string
		d.OnResult(func(call realtime.ToolCall, res tools.Result) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, call.CallID+":"+string(res.ErrorCode))
		})
		d.Handle(responseDone(functionCall(tools.NameGetWalletBalance, "c9", "")))
		d.Wait()

		if len(seen) != 1 || seen[0] != "c9:WALLET_NOT_CONNECTED" {
			t.Errorf("seen = %v", seen)
		}
	})

	t.Run("execute", func(t *testing.T) {
		sender := &recordingSender{}
		env := &tools.Env{Wallet: &fakeWallet{connected: true}}
		d := NewDispatcher(sender, tools.DefaultRegistry(), env, testConfig())

		res, err := d.Execute(context.Background(), tools.NameGetWalletBalance, nil)
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if !res.Success {
			t.Errorf("res = %+v", res)
		}
		if len(sender.Events()) != 0 {
			t.Error("execute should not talk to the model")
		}

		if _, err := d.Execute(context.Background(), "nope", nil); !errors.Is(err, ErrUnknownTool) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestAssistant(t *testing.T) {
	newAssistant := func(w Wallet) (*Assistant, *realtime.MockDialer, *notify.Recorder) {
		dialer := realtime.NewMockDialer()
		rec := &notify.Recorder{}
		a := New(dialer, w, rec, WithGaps(0, 0), WithLogger(log.Discard()))
		return a, dialer, rec
	}

	t.Run("configures on session.created", func(t *testing.T) {
		a, dialer, _ := newAssistant(&fakeWallet{})
		if err := a.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		defer a.Close()

		dialer.SimulateEvent(realtime.NewEvent(realtime.TypeSessionCreated, nil))
		a.Wait()

		sent := dialer.Channel().SentEvents()
		if len(sent) != 3 || sent[0].Type != realtime.TypeSessionUpdate {
			t.Fatalf("sent = %+v", sent)
		}
		st := a.Status()
		if st.Phase != "open" || !st.Configured || len(st.Tools) != 5 {
			t.Errorf("status = %+v", st)
		}
	})

	t.Run("configures when session.created precedes open", func(t *testing.T) {
		a, dialer, _ := newAssistant(&fakeWallet{})
		dialer.AutoOpen = false
		if err := a.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		defer a.Close()

		dialer.SimulateEvent(realtime.NewEvent(realtime.TypeSessionCreated, nil))
		dialer.SimulateOpen()
		a.Wait()

		sent := dialer.Channel().SentEvents()
		if len(sent) != 3 {
			t.Fatalf("sent %d events, want session.update, greeting, response.create: %+v", len(sent), sent)
		}
		if sent[0].Type != realtime.TypeSessionUpdate || sent[2].Type != realtime.TypeResponseCreate {
			t.Errorf("sent = %+v", sent)
		}
		if st := a.Status(); st.Phase != "open" || !st.Configured {
			t.Errorf("status = %+v", st)
		}
	})

	t.Run("reconfigures after reconnect", func(t *testing.T) {
		a, dialer, _ := newAssistant(nil)
		ctx := context.Background()

		if err := a.Start(ctx); err != nil {
			t.Fatalf("start: %v", err)
		}
		dialer.SimulateEvent(realtime.NewEvent(realtime.TypeSessionCreated, nil))
		a.Wait()
		first := dialer.Channel()

		dialer.SimulateClose()
		if a.Status().Phase != "closed" {
			t.Fatalf("phase = %s", a.Status().Phase)
		}

		if err := a.Start(ctx); err != nil {
			t.Fatalf("restart: %v", err)
		}
		if a.Status().Configured {
			t.Error("guard should be reset on open")
		}
		dialer.SimulateEvent(realtime.NewEvent(realtime.TypeSessionCreated, nil))
		a.Wait()

		second := dialer.Channel()
		if second == first {
			t.Fatal("expected a fresh channel")
		}
		if len(second.SentEvents()) != 3 {
			t.Errorf("second channel got %d events", len(second.SentEvents()))
		}
		a.Close()
	})

	t.Run("tool call round trip", func(t *testing.T) {
		w := &fakeWallet{connected: true}
		a, dialer, rec := newAssistant(w)
		if err := a.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		defer a.Close()

		dialer.SimulateEvent(responseDone(functionCall(tools.NameSendEthereum, "call_send", `{"amount":"0.01","recipient":"0x00000000000000000000000000000000000000aa"}`)))
		a.Wait()

		sent := dialer.Channel().SentEvents()
		if len(sent) != 2 {
			t.Fatalf("sent %d events", len(sent))
		}
		callID, res := decodeOutput(t, sent[0])
		if callID != "call_send" || !res.Success {
			t.Errorf("call %s result %+v", callID, res)
		}
		if w.sends != 1 {
			t.Errorf("wallet sends = %d", w.sends)
		}
		if len(rec.Toasts()) != 1 {
			t.Errorf("toasts = %+v", rec.Toasts())
		}
	})

	t.Run("stop does not abort running tools", func(t *testing.T) {
		a, dialer, _ := newAssistant(&fakeWallet{connected: true})
		if err := a.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		ch := dialer.Channel()
		dialer.SimulateEvent(responseDone(functionCall(tools.NameGetWalletBalance, "c", "")))
		a.Stop()
		a.Wait()

		// Part of the result may have gone out before the stop. Nothing
		// beyond it is sent once the channel is closed.
		if n := len(ch.SentEvents()); n > 2 {
			t.Errorf("sent %d events", n)
		}
		if a.Status().Phase != "closed" {
			t.Errorf("phase = %s", a.Status().Phase)
		}
	})

	t.Run("wallet controls", func(t *testing.T) {
		w := &fakeWallet{}
		a, _, _ := newAssistant(w)
		ctx := context.Background()

		if err := a.ConnectWallet(ctx); err != nil {
			t.Fatalf("connect: %v", err)
		}
		if !a.Status().Wallet.Connected {
			t.Error("expected connected wallet")
		}
		res, err := a.TriggerTool(ctx, tools.NameGetWalletBalance, nil)
		if err != nil || !res.Success {
			t.Errorf("trigger = %+v, %v", res, err)
		}
		if err := a.DisconnectWallet(); err != nil {
			t.Fatalf("disconnect: %v", err)
		}
		if a.Status().Wallet.Connected {
			t.Error("expected disconnected wallet")
		}

		bare, _, _ := newAssistant(nil)
		if err := bare.ConnectWallet(ctx); !errors.Is(err, ErrNoWallet) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("send text", func(t *testing.T) {
		a, dialer, _ := newAssistant(nil)
		if err := a.SendText("hello"); err != nil {
			t.Fatalf("send before start should be a no-op: %v", err)
		}
		if err := a.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		defer a.Close()
		if err := a.SendText("hello"); err != nil {
			t.Fatalf("send: %v", err)
		}
		sent := dialer.Channel().SentEvents()
		if len(sent) != 2 || sent[1].Type != realtime.TypeResponseCreate {
			t.Errorf("sent = %+v", sent)
		}
		if len(a.Events()) != 2 {
			t.Errorf("log has %d events", len(a.Events()))
		}
	})
}
