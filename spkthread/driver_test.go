package spkthread

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-spk/internal/osthread"
	"github.com/arloliu/go-spk/logger"
	"github.com/arloliu/go-spk/spk"
	"github.com/stretchr/testify/require"
)

type fakeCall struct {
	method string
	arg    string
	tid    int
}

// fakeSynth implements every capability and records the calls it receives.
type fakeSynth struct {
	mu    sync.Mutex
	calls []fakeCall

	constructErr  error
	constructGate chan struct{} // when set, Construct blocks until closed
	sayGate       chan struct{} // when set, Say blocks until closed
	sayPanic      bool
	sayLocations  int // number of SpeechLocation notifications posted by Say
	track         int

	notifier      spk.Notifier
	active        atomic.Int32
	maxActive     atomic.Int32
	destructCount atomic.Int32
}

var (
	_ spk.Synthesizer       = (*fakeSynth)(nil)
	_ spk.Tracker           = (*fakeSynth)(nil)
	_ spk.VolumeSetter      = (*fakeSynth)(nil)
	_ spk.RateSetter        = (*fakeSynth)(nil)
	_ spk.PitchSetter       = (*fakeSynth)(nil)
	_ spk.PunctuationSetter = (*fakeSynth)(nil)
)

func (s *fakeSynth) record(method string, arg any) func() {
	if n := s.active.Add(1); n > s.maxActive.Load() {
		s.maxActive.Store(n)
	}

	s.mu.Lock()
	s.calls = append(s.calls, fakeCall{method: method, arg: fmt.Sprint(arg), tid: osthread.ID()})
	s.mu.Unlock()

	return func() { s.active.Add(-1) }
}

func (s *fakeSynth) Calls() []fakeCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]fakeCall(nil), s.calls...)
}

func (s *fakeSynth) CallsOf(method string) []fakeCall {
	var out []fakeCall
	for _, c := range s.Calls() {
		if c.method == method {
			out = append(out, c)
		}
	}

	return out
}

func (s *fakeSynth) Construct(n spk.Notifier, params spk.Parameters) error {
	defer s.record("Construct", params)()
	if s.constructGate != nil {
		<-s.constructGate
	}
	s.notifier = n

	return s.constructErr
}

func (s *fakeSynth) Destruct() {
	defer s.record("Destruct", "")()
	s.destructCount.Add(1)
}

func (s *fakeSynth) Say(text []byte, count int, attributes []byte) {
	defer s.record("Say", string(text))()
	if s.sayGate != nil {
		<-s.sayGate
	}
	if s.sayPanic {
		panic("say failed")
	}

	for i := range s.sayLocations {
		s.notifier.SpeechLocation(i)
	}
	if s.sayLocations > 0 {
		s.notifier.SpeechFinished()
	}
}

func (s *fakeSynth) Mute()            { defer s.record("Mute", "")() }
func (s *fakeSynth) DoTrack()         { defer s.record("DoTrack", "")() }
func (s *fakeSynth) GetTrack() int    { defer s.record("GetTrack", "")(); return s.track }
func (s *fakeSynth) IsSpeaking() bool { defer s.record("IsSpeaking", "")(); return s.track > 0 }

func (s *fakeSynth) SetVolume(v byte) { defer s.record("SetVolume", v)() }
func (s *fakeSynth) SetRate(v byte)   { defer s.record("SetRate", v)() }
func (s *fakeSynth) SetPitch(v byte)  { defer s.record("SetPitch", v)() }

func (s *fakeSynth) SetPunctuation(p spk.Punctuation) { defer s.record("SetPunctuation", p)() }

// minimalSynth implements only the mandatory backend methods.
type minimalSynth struct {
	says atomic.Int32
}

func (s *minimalSynth) Construct(spk.Notifier, spk.Parameters) error { return nil }
func (s *minimalSynth) Destruct()                                    {}
func (s *minimalSynth) Say([]byte, int, []byte)                      { s.says.Add(1) }
func (s *minimalSynth) Mute()                                        {}

func testOptions(opts ...Option) []Option {
	base := []Option{
		WithLogger(logger.NewPermissiveMockLogger()),
		WithStartTimeout(2 * time.Second),
		WithStopTimeout(2 * time.Second),
		WithResponseTimeout(2 * time.Second),
		WithIdleInterval(20 * time.Millisecond),
	}

	return append(base, opts...)
}

func startDriver(t *testing.T, synth spk.Synthesizer, opts ...Option) *DriverThread {
	t.Helper()

	dt, err := Start(context.Background(), synth, nil, testOptions(opts...)...)
	require.NoError(t, err)
	require.Equal(t, spk.ReadyState, dt.State())

	return dt
}

func TestStart_ConstructFailure(t *testing.T) {
	require := require.New(t)

	var mu sync.Mutex
	var states []spk.ThreadState
	synth := &fakeSynth{constructErr: errors.New("no audio device")}

	dt, err := Start(context.Background(), synth, nil, testOptions(
		WithStateChangeHandler(func(_, s spk.ThreadState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		}),
	)...)
	require.ErrorIs(err, spk.ErrConstructFailed)
	require.Nil(dt)

	// the worker has already finished and been joined
	mu.Lock()
	require.Equal([]spk.ThreadState{spk.StartingState, spk.StoppingState, spk.FinishedState}, states)
	mu.Unlock()

	require.Len(synth.CallsOf("Construct"), 1)
	require.Zero(synth.destructCount.Load())
}

func TestStart_NilSynthesizer(t *testing.T) {
	_, err := Start(context.Background(), nil, nil)
	require.ErrorIs(t, err, spk.ErrConstructFailed)
}

func TestStart_Timeout(t *testing.T) {
	require := require.New(t)

	gate := make(chan struct{})
	synth := &fakeSynth{constructGate: gate}

	time.AfterFunc(150*time.Millisecond, func() { close(gate) })

	start := time.Now()
	dt, err := Start(context.Background(), synth, nil, testOptions(WithStartTimeout(50*time.Millisecond))...)
	require.ErrorIs(err, spk.ErrStartTimeout)
	require.Nil(dt)

	// Start joins the worker, so it returns only after the slow construction
	require.GreaterOrEqual(time.Since(start), 150*time.Millisecond)
	require.Equal(int32(1), synth.destructCount.Load())
}

func TestStart_StateHandlerPanic(t *testing.T) {
	require := require.New(t)

	synth := &fakeSynth{}

	start := time.Now()
	dt, err := Start(context.Background(), synth, nil, testOptions(
		WithStartTimeout(time.Second),
		WithStateChangeHandler(func(_, s spk.ThreadState) {
			if s == spk.ReadyState {
				panic("boom")
			}
		}),
	)...)
	require.ErrorIs(err, spk.ErrConstructFailed)
	require.Nil(dt)

	// the start reply is answered by teardown, not by the start timeout
	require.Less(time.Since(start), 500*time.Millisecond)
	require.Len(synth.CallsOf("Construct"), 1)
	require.Equal(int32(1), synth.destructCount.Load())
}

func TestStop_StateHandlerPanic(t *testing.T) {
	require := require.New(t)

	synth := &fakeSynth{}
	dt := startDriver(t, synth, WithStateChangeHandler(func(_, s spk.ThreadState) {
		if s == spk.StoppingState {
			panic("boom")
		}
	}))

	require.NoError(dt.Stop(context.Background()))
	require.Equal(spk.FinishedState, dt.State())
	require.Equal(int32(1), synth.destructCount.Load())
}

func TestStartStop_NoCommands(t *testing.T) {
	require := require.New(t)

	synth := &fakeSynth{}
	dt := startDriver(t, synth, WithStopTimeout(500*time.Millisecond))

	start := time.Now()
	require.NoError(dt.Stop(context.Background()))
	require.Less(time.Since(start), 500*time.Millisecond+200*time.Millisecond)

	require.Equal(spk.FinishedState, dt.State())
	require.Equal(int32(1), synth.destructCount.Load())

	select {
	case <-dt.Done():
	default:
		require.Fail("worker not joined")
	}

	// idempotent
	require.NoError(dt.Stop(context.Background()))
	require.Equal(int32(1), synth.destructCount.Load())
}

func TestStop_NoBackendCallsAfterStop(t *testing.T) {
	require := require.New(t)

	synth := &fakeSynth{}
	dt := startDriver(t, synth)

	require.True(dt.SayText(context.Background(), []byte("hello"), nil))
	require.NoError(dt.Stop(context.Background()))

	calls := synth.Calls()
	require.Equal("Destruct", calls[len(calls)-1].method)

	require.False(dt.SayText(context.Background(), []byte("again"), nil))
	require.False(dt.SetVolume(context.Background(), 5))
	require.Equal(calls, synth.Calls())

	cmd, err := spk.NewMuteSpeechCommand()
	require.NoError(err)
	_, err = dt.Call(context.Background(), cmd)
	require.ErrorIs(err, spk.ErrThreadNotReady)
	require.False(cmd.Release(), "command must be released by Call")
}

func TestSetVolume_OnWorkerThread(t *testing.T) {
	require := require.New(t)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	callerTID := osthread.ID()

	synth := &fakeSynth{}
	dt := startDriver(t, synth)
	defer func() { _ = dt.Stop(context.Background()) }()

	require.True(dt.SetVolume(context.Background(), 42))

	calls := synth.CallsOf("SetVolume")
	require.Len(calls, 1)
	require.Equal("42", calls[0].arg)

	if callerTID == 0 {
		t.Skip("thread ids are not available on " + runtime.GOOS)
	}

	require.Equal(dt.ThreadID(), calls[0].tid)
	require.NotEqual(callerTID, calls[0].tid)
	for _, c := range synth.Calls() {
		require.Equal(dt.ThreadID(), c.tid, "%s ran on another thread", c.method)
	}
}

func TestCommands_ResponsesInOrder(t *testing.T) {
	require := require.New(t)

	synth := &fakeSynth{track: 7}
	dt := startDriver(t, synth)
	defer func() { _ = dt.Stop(context.Background()) }()

	ctx := context.Background()
	var want []string
	for i := range 10 {
		text := fmt.Sprintf("utterance %d", i)
		require.True(dt.SayText(ctx, []byte(text), nil))
		want = append(want, "Say:"+text)

		require.True(dt.SetRate(ctx, byte(i)))
		want = append(want, fmt.Sprintf("SetRate:%d", i))
	}

	require.True(dt.SetPitch(ctx, spk.SettingDefault))
	require.True(dt.SetPunctuation(ctx, spk.PunctuationAll))
	require.True(dt.MuteSpeech(ctx))
	require.True(dt.DoTrack(ctx))
	require.Equal(7, dt.GetTrack(ctx))
	require.True(dt.IsSpeaking(ctx))
	want = append(want, "SetPitch:10", "SetPunctuation:all", "Mute:", "DoTrack:", "GetTrack:", "IsSpeaking:")

	var got []string
	for _, c := range synth.Calls()[1:] {
		got = append(got, c.method+":"+c.arg)
	}
	require.Equal(want, got)

	m := dt.GetMetrics()
	require.Equal(uint64(len(want)), m.CommandSendCount.Load())
	require.Zero(m.CommandErrCount.Load())
	require.Zero(m.CommandInflightCount.Load())
}

func TestCommands_ConcurrentCallersSerialized(t *testing.T) {
	require := require.New(t)

	synth := &fakeSynth{}
	dt := startDriver(t, synth)
	defer func() { _ = dt.Stop(context.Background()) }()

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if !dt.SetPitch(context.Background(), byte(i)) {
					failures.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	require.Zero(failures.Load())
	require.Len(synth.CallsOf("SetPitch"), 80)
	require.Equal(int32(1), synth.maxActive.Load())
}

func TestCommands_StalledBackend(t *testing.T) {
	require := require.New(t)

	gate := make(chan struct{})
	synth := &fakeSynth{sayGate: gate}
	dt := startDriver(t, synth, WithResponseTimeout(50*time.Millisecond))
	defer func() { _ = dt.Stop(context.Background()) }()

	start := time.Now()
	require.False(dt.SayText(context.Background(), []byte("stuck"), nil))
	require.GreaterOrEqual(time.Since(start), 50*time.Millisecond)
	require.Less(time.Since(start), time.Second)

	m := dt.GetMetrics()
	require.Equal(uint64(1), m.CommandTimeoutCount.Load())

	// the worker is still inside Say
	require.Equal(int32(1), synth.active.Load())
	require.Equal(spk.ReadyState, dt.State())

	close(gate)
	require.Eventually(func() bool {
		return m.LateResponseCount.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// the stale response did not leak into the next command
	synth.track = 3
	require.Equal(3, dt.GetTrack(context.Background()))
}

func TestStop_StalledBackend(t *testing.T) {
	require := require.New(t)

	gate := make(chan struct{})
	synth := &fakeSynth{sayGate: gate}
	dt := startDriver(t, synth,
		WithResponseTimeout(20*time.Millisecond),
		WithStopTimeout(50*time.Millisecond),
	)

	require.False(dt.SayText(context.Background(), []byte("stuck"), nil))

	time.AfterFunc(150*time.Millisecond, func() { close(gate) })

	start := time.Now()
	err := dt.Stop(context.Background())
	require.ErrorIs(err, spk.ErrStopTimeout)
	require.GreaterOrEqual(time.Since(start), 100*time.Millisecond)

	require.Equal(spk.FinishedState, dt.State())
	require.Equal(int32(1), synth.destructCount.Load())
}

func TestCommands_BackendPanic(t *testing.T) {
	require := require.New(t)

	synth := &fakeSynth{sayPanic: true}
	dt := startDriver(t, synth)
	defer func() { _ = dt.Stop(context.Background()) }()

	require.False(dt.SayText(context.Background(), []byte("boom"), nil))
	require.True(dt.SetVolume(context.Background(), 1))
}

func TestCommands_UnsupportedCapability(t *testing.T) {
	require := require.New(t)

	synth := &minimalSynth{}
	dt := startDriver(t, synth)
	defer func() { _ = dt.Stop(context.Background()) }()

	ctx := context.Background()
	require.True(dt.SayText(ctx, []byte("plain"), nil))
	require.True(dt.MuteSpeech(ctx))
	require.False(dt.DoTrack(ctx))
	require.Zero(dt.GetTrack(ctx))
	require.False(dt.IsSpeaking(ctx))
	require.False(dt.SetVolume(ctx, 1))
	require.False(dt.SetRate(ctx, 1))
	require.False(dt.SetPitch(ctx, 1))
	require.False(dt.SetPunctuation(ctx, spk.PunctuationSome))

	// a missing capability is answered, not failed
	cmd, err := spk.NewDoTrackCommand()
	require.NoError(err)
	result, err := dt.Call(ctx, cmd)
	require.NoError(err)
	require.Zero(result)

	require.Equal(int32(1), synth.says.Load())
	require.Zero(dt.GetMetrics().CommandErrCount.Load())
}

func TestCommands_InvalidInput(t *testing.T) {
	require := require.New(t)

	synth := &fakeSynth{}
	dt := startDriver(t, synth, WithMaxPayloadSize(32))
	defer func() { _ = dt.Stop(context.Background()) }()

	ctx := context.Background()
	require.False(dt.SayText(ctx, []byte("abc"), []byte{1}))
	require.False(dt.SayText(ctx, make([]byte, 64), nil))
	require.False(dt.SetPunctuation(ctx, spk.Punctuation(9)))

	_, err := dt.Call(ctx, nil)
	require.ErrorIs(err, spk.ErrUnknownCommand)

	require.Empty(synth.CallsOf("Say"))
	require.Equal(uint64(4), dt.GetMetrics().CommandErrCount.Load())
}

func TestCommands_ContextCancelled(t *testing.T) {
	require := require.New(t)

	gate := make(chan struct{})
	synth := &fakeSynth{sayGate: gate}
	dt := startDriver(t, synth)
	defer func() { _ = dt.Stop(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	cmd, err := spk.NewSayTextCommand([]byte("slow"), nil)
	require.NoError(err)
	_, err = dt.Call(ctx, cmd)
	require.ErrorIs(err, context.DeadlineExceeded)

	close(gate)
	require.Eventually(func() bool {
		return dt.GetMetrics().LateResponseCount.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestNotifications_Order(t *testing.T) {
	require := require.New(t)

	synth := &fakeSynth{sayLocations: 5}
	dt := startDriver(t, synth)

	var mu sync.Mutex
	var events []string
	finished := make(chan struct{})
	h := spk.NotificationHandlerFuncs{
		OnSpeechIndex: func(i int) {
			mu.Lock()
			events = append(events, fmt.Sprintf("index:%d", i))
			mu.Unlock()
		},
		OnSpeechFinished: func() {
			mu.Lock()
			events = append(events, "finished")
			mu.Unlock()
			close(finished)
		},
	}

	served := make(chan struct{})
	go func() {
		defer close(served)
		dt.ServeNotifications(context.Background(), h)
	}()

	require.True(dt.SayText(context.Background(), []byte("one two three four five"), nil))

	select {
	case <-finished:
	case <-time.After(time.Second):
		require.Fail("speech finished notification not served")
	}

	require.NoError(dt.Stop(context.Background()))

	// the outbox is closed after Stop, so the consumer drains and returns
	select {
	case <-served:
	case <-time.After(time.Second):
		require.Fail("ServeNotifications did not return after Stop")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal([]string{"index:0", "index:1", "index:2", "index:3", "index:4", "finished"}, events)

	m := dt.GetMetrics()
	require.Equal(uint64(6), m.NotificationSendCount.Load())
	require.Zero(m.NotificationDropCount.Load())
}

func TestNotifications_QueueFull(t *testing.T) {
	require := require.New(t)

	synth := &fakeSynth{sayLocations: 4}
	dt := startDriver(t, synth, WithNotificationQueueSize(2))

	require.True(dt.SayText(context.Background(), []byte("a b c d"), nil))

	m := dt.GetMetrics()
	require.Equal(uint64(2), m.NotificationSendCount.Load())
	require.Equal(uint64(3), m.NotificationDropCount.Load())

	var indexes []int
	for range 2 {
		ntf := <-dt.Notifications()
		indexes = append(indexes, ntf.Index())
		require.True(ntf.Release())
	}
	require.Equal([]int{0, 1}, indexes)

	require.NoError(dt.Stop(context.Background()))

	_, ok := <-dt.Notifications()
	require.False(ok)

	// posting after Stop is refused
	require.False(synth.notifier.SpeechFinished())
	require.Equal(uint64(4), m.NotificationDropCount.Load())
}

func TestNotifications_LeftoversReleasedByStop(t *testing.T) {
	require := require.New(t)

	synth := &fakeSynth{sayLocations: 2}
	dt := startDriver(t, synth)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dt.ServeNotifications(ctx, spk.NotificationHandlerFuncs{})

	// index 0, index 1 and finished stay queued
	require.True(dt.SayText(context.Background(), []byte("a b"), nil))
	m := dt.GetMetrics()
	require.Equal(uint64(3), m.NotificationSendCount.Load())
	require.Zero(m.NotificationDropCount.Load())

	require.NoError(dt.Stop(context.Background()))

	require.Equal(uint64(3), m.NotificationDropCount.Load())
	_, ok := <-dt.Notifications()
	require.False(ok)
}

func TestNotifications_LeftoversReleasedByServe(t *testing.T) {
	require := require.New(t)

	synth := &fakeSynth{sayLocations: 2}
	dt := startDriver(t, synth)

	require.True(dt.SayText(context.Background(), []byte("a b"), nil))
	require.NoError(dt.Stop(context.Background()))

	// the outbox was already released, a late consumer finds it closed and empty
	var served int
	dt.ServeNotifications(context.Background(), spk.NotificationHandlerFuncs{
		OnSpeechIndex:    func(int) { served++ },
		OnSpeechFinished: func() { served++ },
	})
	require.Zero(served)
	require.Equal(uint64(3), dt.GetMetrics().NotificationDropCount.Load())
}

func TestServeNotifications_ContextDone(t *testing.T) {
	synth := &fakeSynth{}
	dt := startDriver(t, synth)
	defer func() { _ = dt.Stop(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		dt.ServeNotifications(ctx, spk.NotificationHandlerFuncs{})
	}()

	cancel()
	select {
	case <-served:
	case <-time.After(time.Second):
		require.Fail(t, "ServeNotifications ignored context cancellation")
	}
}

func TestIdleTicks(t *testing.T) {
	synth := &fakeSynth{}
	dt := startDriver(t, synth, WithIdleInterval(10*time.Millisecond))
	defer func() { _ = dt.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return dt.GetMetrics().IdleTickCount.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestParametersPassedToBackend(t *testing.T) {
	require := require.New(t)

	params, err := spk.ParseParameters("voice=en,rate=4")
	require.NoError(err)

	synth := &fakeSynth{}
	dt, err := Start(context.Background(), synth, params, testOptions(WithDriverName("fake"))...)
	require.NoError(err)
	defer func() { _ = dt.Stop(context.Background()) }()

	require.Equal("fake", dt.DriverName())
	calls := synth.CallsOf("Construct")
	require.Len(calls, 1)
	require.Equal(fmt.Sprint(params), calls[0].arg)
}
