package check

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mineguard/cheatercheck/pkg/afk"
	"github.com/mineguard/cheatercheck/pkg/freeze"
	"github.com/mineguard/cheatercheck/pkg/messaging"
	"github.com/mineguard/cheatercheck/pkg/metrics"
	"github.com/mineguard/cheatercheck/pkg/sched"
	"github.com/mineguard/cheatercheck/pkg/world"
)

type recordingTransport struct {
	direct     map[uuid.UUID][]string
	broadcasts []string
	staffOnly  []string
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{direct: make(map[uuid.UUID][]string)}
}

func (r *recordingTransport) MessagePlayer(id uuid.UUID, text string) {
	r.direct[id] = append(r.direct[id], text)
}
func (r *recordingTransport) Broadcast(text string) { r.broadcasts = append(r.broadcasts, text) }
func (r *recordingTransport) BroadcastPermission(_, text string) {
	r.staffOnly = append(r.staffOnly, text)
}

type fakeEffects struct {
	titles    int
	bars      map[uuid.UUID]string
	barHidden map[uuid.UUID]bool
}

func newFakeEffects() *fakeEffects {
	return &fakeEffects{bars: make(map[uuid.UUID]string), barHidden: make(map[uuid.UUID]bool)}
}

func (f *fakeEffects) SendTitle(uuid.UUID, string, string, int, int, int) { f.titles++ }
func (f *fakeEffects) PlaySound(uuid.UUID, string, float64, float64)      {}
func (f *fakeEffects) SpawnParticle(string, string, float64, float64, float64) error {
	return nil
}
func (f *fakeEffects) ApplyBlindness(uuid.UUID) {}
func (f *fakeEffects) ClearBlindness(uuid.UUID) {}
func (f *fakeEffects) ShowTimerBar(id uuid.UUID, text string, _ float64) {
	f.bars[id] = text
	f.barHidden[id] = false
}
func (f *fakeEffects) HideTimerBar(id uuid.UUID) { f.barHidden[id] = true }

type fakeCommands struct{ cmds []string }

func (f *fakeCommands) RunCommand(cmd string) { f.cmds = append(f.cmds, cmd) }

func (f *fakeCommands) containing(substr string) int {
	n := 0
	for _, c := range f.cmds {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

type fakeStore struct {
	bypass map[string]bool
	start  []string
	stop   []string
	quit   []string
	audits []AuditEntry
}

func newFakeStore() *fakeStore { return &fakeStore{bypass: make(map[string]bool)} }

func (f *fakeStore) IsBypassed(name string) bool { return f.bypass[strings.ToLower(name)] }
func (f *fakeStore) OnStartCommands() []string   { return f.start }
func (f *fakeStore) OnStopCommands() []string    { return f.stop }
func (f *fakeStore) OnQuitCommands() []string    { return f.quit }
func (f *fakeStore) RecordAudit(e AuditEntry)    { f.audits = append(f.audits, e) }

type env struct {
	loop      *sched.Loop
	mem       *world.Memory
	effects   *fakeEffects
	transport *recordingTransport
	commands  *fakeCommands
	store     *fakeStore
	freezer   *freeze.Manager
	tracker   *afk.Tracker
	mgr       *Manager
	staff     messaging.Actor
	target    world.Player
}

type flatBlocks struct{}

func (flatBlocks) SolidAt(_ string, _, y, _ int) bool { return y <= 63 }
func (flatBlocks) MinY(string) int                    { return -64 }

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	loop := sched.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	mem := world.NewMemory(nil)
	effects := newFakeEffects()
	transport := newRecordingTransport()
	commands := &fakeCommands{}
	store := newFakeStore()
	msg := messaging.NewMessenger(messaging.DefaultCatalog(), transport, nil)
	set := metrics.NewTestSet()

	freezer := freeze.NewManager(freeze.DefaultConfig(), loop, mem, flatBlocks{}, effects, msg, set, nil)
	tracker := afk.NewTracker(afk.DefaultConfig(), loop, mem, nil)

	staffID := uuid.New()
	mem.Join(world.Player{ID: staffID, Name: "Mod", Location: world.Location{World: "world", Y: 64}})
	target := world.Player{ID: uuid.New(), Name: "Suspect", Location: world.Location{World: "world", X: 100, Y: 64, Z: 100}}
	mem.Join(target)

	mgr := NewManager(cfg, loop, mem, freezer, tracker, msg, effects, commands, store, nil, nil, set, nil)
	return &env{
		loop: loop, mem: mem, effects: effects, transport: transport,
		commands: commands, store: store, freezer: freezer, tracker: tracker,
		mgr: mgr, staff: messaging.Actor{ID: staffID, Name: "Mod"}, target: target,
	}
}

func TestStartCheckFreezesAndSchedules(t *testing.T) {
	e := newEnv(t, DefaultConfig())

	if res := e.mgr.StartCheck(e.staff, "Suspect"); res != StartOK {
		t.Fatalf("StartCheck = %v, want StartOK", res)
	}
	if !e.mgr.IsChecked(e.target.ID) {
		t.Fatal("no active session after start")
	}
	if !e.freezer.IsFrozen(e.target.ID) {
		t.Fatal("target not frozen")
	}
	if len(e.transport.direct[e.target.ID]) == 0 {
		t.Fatal("target received no notice")
	}
	if len(e.transport.staffOnly) == 0 {
		t.Fatal("staff broadcast missing")
	}
	if len(e.store.audits) == 0 || e.store.audits[0].Event != "check_started" {
		t.Fatal("start not audited")
	}

	// reminders run while active
	e.loop.Advance(25 * time.Second)
	reminders := 0
	for _, msg := range e.transport.direct[e.target.ID] {
		if strings.Contains(msg, "still being checked") {
			reminders++
		}
	}
	if reminders != 2 {
		t.Fatalf("got %d reminders after 25s, want 2", reminders)
	}
}

func TestStartCheckRejectsDuplicate(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.mgr.StartCheck(e.staff, "Suspect")
	if res := e.mgr.StartCheck(e.staff, "Suspect"); res != StartAlreadyChecked {
		t.Fatalf("duplicate start = %v, want StartAlreadyChecked", res)
	}
	if e.mgr.ActiveCount() != 1 {
		t.Fatal("duplicate start created a second session")
	}
}

func TestStartCheckRejectsOfflineAndBypassed(t *testing.T) {
	e := newEnv(t, DefaultConfig())

	if res := e.mgr.StartCheck(e.staff, "Ghost"); res != StartOffline {
		t.Fatalf("offline start = %v, want StartOffline", res)
	}
	e.store.bypass["suspect"] = true
	if res := e.mgr.StartCheck(e.staff, "Suspect"); res != StartBypassed {
		t.Fatalf("bypassed start = %v, want StartBypassed", res)
	}
	if e.freezer.IsFrozen(e.target.ID) {
		t.Fatal("bypassed player was frozen")
	}
}

func TestTimeoutBansExactlyOnce(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.mgr.StartCheck(e.staff, "Suspect")

	e.loop.Advance(299 * time.Second)
	if got := e.commands.containing("ban Suspect"); got != 0 {
		t.Fatalf("ban issued before timeout: %d", got)
	}

	e.loop.Advance(10 * time.Second)
	if got := e.commands.containing("Failed to respond"); got != 1 {
		t.Fatalf("timeout ban count = %d, want exactly 1", got)
	}
	if e.mgr.IsChecked(e.target.ID) {
		t.Fatal("session survived timeout")
	}
	if e.freezer.IsFrozen(e.target.ID) {
		t.Fatal("target still frozen after timeout")
	}

	// nothing fires after teardown
	before := len(e.commands.cmds)
	e.loop.Advance(10 * time.Minute)
	if len(e.commands.cmds) != before {
		t.Fatal("commands issued after session teardown")
	}
}

func TestPauseGenuinelyDefersTimeout(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.mgr.StartCheck(e.staff, "Suspect")

	e.loop.Advance(100 * time.Second) // 200s remaining
	if res := e.mgr.TogglePause(e.staff, "Suspect"); res != StartOK {
		t.Fatal("pause failed")
	}

	e.loop.Advance(30 * time.Minute)
	if got := e.commands.containing("Failed to respond"); got != 0 {
		t.Fatal("timeout fired while paused")
	}
	if !e.mgr.IsChecked(e.target.ID) {
		t.Fatal("session ended while paused")
	}

	e.mgr.TogglePause(e.staff, "Suspect") // resume
	e.loop.Advance(199 * time.Second)
	if got := e.commands.containing("Failed to respond"); got != 0 {
		t.Fatal("timeout fired early after resume")
	}
	e.loop.Advance(2 * time.Second)
	if got := e.commands.containing("Failed to respond"); got != 1 {
		t.Fatalf("timeout ban count after resume = %d, want 1", got)
	}
}

func TestAddTimeExtendsDeadline(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.mgr.StartCheck(e.staff, "Suspect")

	e.loop.Advance(100 * time.Second)
	if res := e.mgr.AddTime(e.staff, "Suspect", 60); res != StartOK {
		t.Fatal("AddTime failed")
	}

	// original deadline would be t=300; new one is t=360
	e.loop.Advance(259 * time.Second) // t=359
	if got := e.commands.containing("Failed to respond"); got != 0 {
		t.Fatal("timeout ignored added time")
	}
	e.loop.Advance(2 * time.Second)
	if got := e.commands.containing("Failed to respond"); got != 1 {
		t.Fatalf("timeout ban count = %d, want 1", got)
	}
}

func TestAddTimeRejectsNonPositive(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.mgr.StartCheck(e.staff, "Suspect")
	if res := e.mgr.AddTime(e.staff, "Suspect", 0); res != StartInvalidTime {
		t.Fatalf("AddTime(0) = %v, want StartInvalidTime", res)
	}
	if res := e.mgr.AddTime(e.staff, "Suspect", -30); res != StartInvalidTime {
		t.Fatalf("AddTime(-30) = %v, want StartInvalidTime", res)
	}
}

func TestCleanVerdictUnfreezesAndRestricts(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.mgr.StartCheck(e.staff, "Suspect")
	e.loop.Advance(30 * time.Second)

	if res := e.mgr.EndCheck(e.staff, "Suspect", ""); res != StartOK {
		t.Fatal("clean EndCheck failed")
	}
	if e.mgr.IsChecked(e.target.ID) || e.freezer.IsFrozen(e.target.ID) {
		t.Fatal("state not cleared on clean verdict")
	}
	if !e.effects.barHidden[e.target.ID] {
		t.Fatal("timer bar not hidden")
	}
	if !e.mgr.IsRestricted(e.target.ID) {
		t.Fatal("post-check restriction not active")
	}

	e.loop.Advance(11 * time.Second)
	if e.mgr.IsRestricted(e.target.ID) {
		t.Fatal("restriction did not expire")
	}
	found := false
	for _, msg := range e.transport.direct[e.target.ID] {
		if strings.Contains(msg, "restriction has ended") {
			found = true
		}
	}
	if !found {
		t.Fatal("restriction-over notice missing")
	}

	// no ban command on a clean verdict
	if len(e.commands.cmds) != 0 {
		t.Fatalf("unexpected commands on clean verdict: %v", e.commands.cmds)
	}
}

func TestCheatVerdictUsesCheatDefinition(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.mgr.StartCheck(e.staff, "Suspect")

	if res := e.mgr.EndCheck(e.staff, "Suspect", "KillAura"); res != StartOK {
		t.Fatal("cheat EndCheck failed")
	}
	if got := e.commands.containing("ban Suspect Cheating (killaura)"); got != 1 {
		t.Fatalf("ban command wrong: %v", e.commands.cmds)
	}
	if len(e.transport.broadcasts) == 0 {
		t.Fatal("public ban broadcast missing")
	}
	if e.mgr.IsChecked(e.target.ID) {
		t.Fatal("session survived cheat verdict")
	}
}

func TestUnknownCheatAbortsVerdict(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.mgr.StartCheck(e.staff, "Suspect")

	if res := e.mgr.EndCheck(e.staff, "Suspect", "nosuchcheat"); res != StartUnknownCheat {
		t.Fatalf("unknown cheat = %v, want StartUnknownCheat", res)
	}
	if !e.mgr.IsChecked(e.target.ID) {
		t.Fatal("session removed despite unknown cheat")
	}
	if len(e.commands.cmds) != 0 {
		t.Fatal("command issued for unknown cheat")
	}
}

func TestAfkTargetIsQueuedAndStartedOnReturn(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.tracker.UpdateActivity(e.target.ID)
	e.loop.Advance(2 * time.Minute) // target goes AFK

	if res := e.mgr.StartCheck(e.staff, "Suspect"); res != StartQueuedAfk {
		t.Fatalf("StartCheck on AFK target = %v, want StartQueuedAfk", res)
	}
	if e.mgr.IsChecked(e.target.ID) {
		t.Fatal("session created for AFK target")
	}
	if e.mgr.PendingCount() != 1 {
		t.Fatal("pending entry missing")
	}
	if res := e.mgr.StartCheck(e.staff, "Suspect"); res != StartAlreadyPending {
		t.Fatalf("second queue attempt = %v, want StartAlreadyPending", res)
	}

	// target stays AFK: nothing starts
	e.loop.Advance(30 * time.Second)
	if e.mgr.IsChecked(e.target.ID) {
		t.Fatal("check started while target still AFK")
	}

	// target comes back
	e.tracker.UpdateActivity(e.target.ID)
	e.loop.Advance(2 * time.Second)
	if !e.mgr.IsChecked(e.target.ID) {
		t.Fatal("check did not start when target returned")
	}
	if e.mgr.PendingCount() != 0 {
		t.Fatal("pending entry not consumed")
	}
}

func TestPendingDropsOfflineTarget(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.tracker.UpdateActivity(e.target.ID)
	e.loop.Advance(2 * time.Minute)
	e.mgr.StartCheck(e.staff, "Suspect")

	e.mem.Leave(e.target.ID)
	e.loop.Advance(2 * time.Second)
	if e.mgr.PendingCount() != 0 {
		t.Fatal("pending entry kept for offline target")
	}
}

func TestPendingInitiatorFallsBackToConsole(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.tracker.UpdateActivity(e.target.ID)
	e.loop.Advance(2 * time.Minute)
	e.mgr.StartCheck(e.staff, "Suspect")

	// the requesting staff logs off before the target returns
	e.mem.Leave(e.staff.ID)
	e.tracker.UpdateActivity(e.target.ID)
	e.loop.Advance(2 * time.Second)

	if !e.mgr.IsChecked(e.target.ID) {
		t.Fatal("check did not start with console fallback")
	}
}

func TestForceCheckIgnoresAfk(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.tracker.UpdateActivity(e.target.ID)
	e.loop.Advance(2 * time.Minute)

	if res := e.mgr.ForceCheck(e.staff, "Suspect"); res != StartOK {
		t.Fatalf("ForceCheck = %v, want StartOK", res)
	}
	if !e.mgr.IsChecked(e.target.ID) {
		t.Fatal("forced check did not start")
	}
	if e.mgr.PendingCount() != 0 {
		t.Fatal("pending queue not cleaned by force check")
	}
}

func TestQuitDuringCheckAutoBans(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.store.quit = []string{"broadcast {player} fled"}
	e.mgr.StartCheck(e.staff, "Suspect")
	e.loop.Advance(20 * time.Second)

	e.mgr.HandleQuit(e.target)
	e.mem.Leave(e.target.ID)

	if got := e.commands.containing("Logged out during"); got != 1 {
		t.Fatalf("quit ban count = %d, want 1", got)
	}
	if got := e.commands.containing("Suspect fled"); got != 1 {
		t.Fatal("on-quit hook command not executed")
	}
	if e.mgr.IsChecked(e.target.ID) {
		t.Fatal("session survived quit")
	}

	// timers are dead
	before := len(e.commands.cmds)
	e.loop.Advance(10 * time.Minute)
	if len(e.commands.cmds) != before {
		t.Fatal("session timers fired after quit")
	}
}

func TestQuitWithoutAutoBanOnlyNotifies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoBanOnQuit = false
	e := newEnv(t, cfg)
	e.mgr.StartCheck(e.staff, "Suspect")

	e.mgr.HandleQuit(e.target)
	if len(e.commands.cmds) != 0 {
		t.Fatalf("commands issued without auto-ban: %v", e.commands.cmds)
	}
	if e.mgr.IsChecked(e.target.ID) {
		t.Fatal("session survived quit")
	}
}

func TestReconcileJoinRepairsHalfOpenState(t *testing.T) {
	e := newEnv(t, DefaultConfig())

	// frozen but not checked: lift the freeze
	e.freezer.Freeze(e.target.ID)
	e.mgr.ReconcileJoin(e.target)
	if e.freezer.IsFrozen(e.target.ID) {
		t.Fatal("orphan freeze not lifted on join")
	}

	// checked but not frozen: end clean
	e.mgr.StartCheck(e.staff, "Suspect")
	e.freezer.Unfreeze(e.target.ID)
	e.mgr.ReconcileJoin(e.target)
	if e.mgr.IsChecked(e.target.ID) {
		t.Fatal("orphan session not ended on join")
	}
	if len(e.commands.cmds) != 0 {
		t.Fatal("reconciliation must not issue commands")
	}
}

func TestTeleportRetriesOnceThenGivesUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Teleport.Enabled = true
	cfg.Teleport.Location = world.Location{World: "check", X: 0, Y: 100, Z: 0}
	e := newEnv(t, cfg)

	// first attempt fails, retry succeeds
	e.mem.TeleportFails[e.target.ID] = 1
	e.mgr.StartCheck(e.staff, "Suspect")
	e.loop.Advance(time.Second)
	loc, _ := e.mem.Location(e.target.ID)
	if loc.World != "check" {
		t.Fatalf("retry did not move player, at %v", loc)
	}
	if !e.mgr.IsChecked(e.target.ID) {
		t.Fatal("session lost during teleport retry")
	}
}

func TestTeleportDoubleFailureKeepsSessionAlive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Teleport.Enabled = true
	cfg.Teleport.Location = world.Location{World: "check", Y: 100}
	e := newEnv(t, cfg)

	e.mem.TeleportFails[e.target.ID] = 2
	e.mgr.StartCheck(e.staff, "Suspect")
	e.loop.Advance(time.Second)

	loc, _ := e.mem.Location(e.target.ID)
	if loc.World == "check" {
		t.Fatal("player moved despite two failures")
	}
	if !e.mgr.IsChecked(e.target.ID) || !e.freezer.IsFrozen(e.target.ID) {
		t.Fatal("check flow aborted by teleport failure")
	}
}

func TestCleanVerdictRestoresLocation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Teleport.Enabled = true
	cfg.Teleport.Location = world.Location{World: "check", Y: 100}
	e := newEnv(t, cfg)

	e.mgr.StartCheck(e.staff, "Suspect")
	e.loop.Advance(time.Second)
	if loc, _ := e.mem.Location(e.target.ID); loc.World != "check" {
		t.Fatal("target not moved to check room")
	}

	e.mgr.EndCheck(e.staff, "Suspect", "")
	e.loop.Advance(time.Second)
	loc, _ := e.mem.Location(e.target.ID)
	if loc.World != "world" || loc.X != 100 {
		t.Fatalf("pre-check location not restored, at %v", loc)
	}
}

func TestCancelAllTearsEverythingDown(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	second := world.Player{ID: uuid.New(), Name: "Other", Location: world.Location{World: "world"}}
	e.mem.Join(second)

	e.mgr.StartCheck(e.staff, "Suspect")
	e.mgr.StartCheck(e.staff, "Other")
	if got := e.mgr.CancelAll(e.staff); got != 2 {
		t.Fatalf("CancelAll = %d, want 2", got)
	}
	if e.mgr.ActiveCount() != 0 || e.freezer.Count() != 0 {
		t.Fatal("state left behind by CancelAll")
	}
	if len(e.commands.cmds) != 0 {
		t.Fatal("CancelAll issued commands")
	}

	e.loop.Advance(20 * time.Minute)
	if len(e.commands.cmds) != 0 {
		t.Fatal("timers fired after CancelAll")
	}
}

func TestScreenshareStartsCheckAndNotifies(t *testing.T) {
	e := newEnv(t, DefaultConfig())

	if res := e.mgr.RequestScreenshare(e.staff, "Suspect"); res != StartOK {
		t.Fatalf("RequestScreenshare = %v, want StartOK", res)
	}
	if !e.mgr.IsChecked(e.target.ID) {
		t.Fatal("screenshare did not start a check")
	}
	found := false
	for _, msg := range e.transport.direct[e.target.ID] {
		if strings.Contains(msg, "screenshare") {
			found = true
		}
	}
	if !found {
		t.Fatal("screenshare notice missing")
	}

	// second request reuses the running session
	if res := e.mgr.RequestScreenshare(e.staff, "Suspect"); res != StartOK {
		t.Fatal("screenshare on checked player should succeed")
	}
	if e.mgr.ActiveCount() != 1 {
		t.Fatal("screenshare created a duplicate session")
	}
}

func TestOnStartHookCommandsRun(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.store.start = []string{"effect give {player} slowness"}
	e.mgr.StartCheck(e.staff, "Suspect")
	if got := e.commands.containing("effect give Suspect"); got != 1 {
		t.Fatalf("on-start hook not executed: %v", e.commands.cmds)
	}
}

func TestCheckedPlayersAndCheckedBy(t *testing.T) {
	e := newEnv(t, DefaultConfig())

	if _, ok := e.mgr.CheckedBy(e.target.ID); ok {
		t.Fatal("CheckedBy reported a session before any check")
	}
	e.mgr.StartCheck(e.staff, "Suspect")

	staff, ok := e.mgr.CheckedBy(e.target.ID)
	if !ok || staff.Name != "Mod" {
		t.Fatalf("CheckedBy = %v, %v, want Mod", staff, ok)
	}

	list := e.mgr.CheckedPlayers()
	if len(list) != 1 {
		t.Fatalf("CheckedPlayers returned %d entries, want 1", len(list))
	}
	if list[0].Target != "Suspect" || list[0].Staff != "Mod" || list[0].Paused {
		t.Errorf("unexpected summary: %+v", list[0])
	}
	if list[0].Remaining != DefaultConfig().TimeoutSeconds {
		t.Errorf("Remaining = %d, want %d", list[0].Remaining, DefaultConfig().TimeoutSeconds)
	}
}

func TestStopCheckRunsHooksWithoutVerdict(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.store.stop = []string{"effect clear {player}"}
	e.mgr.StartCheck(e.staff, "Suspect")
	e.loop.Advance(30 * time.Second)

	if res := e.mgr.StopCheck(e.staff, "Suspect"); res != StartOK {
		t.Fatalf("StopCheck = %v, want StartOK", res)
	}
	if e.mgr.IsChecked(e.target.ID) || e.freezer.IsFrozen(e.target.ID) {
		t.Fatal("state not cleared by StopCheck")
	}
	if got := e.commands.containing("effect clear Suspect"); got != 1 {
		t.Fatalf("on-stop hook ran %d times, want 1", got)
	}
	if got := e.commands.containing("ban"); got != 0 {
		t.Fatalf("StopCheck issued a ban: %v", e.commands.cmds)
	}
	if !e.mgr.IsRestricted(e.target.ID) {
		t.Fatal("post-check restriction not applied")
	}
	found := false
	for _, msg := range e.transport.direct[e.target.ID] {
		if strings.Contains(msg, "stopped by Mod") {
			found = true
		}
	}
	if !found {
		t.Fatal("target was not told the check stopped")
	}
	last := e.store.audits[len(e.store.audits)-1]
	if last.Event != "check_stopped" {
		t.Fatalf("audit event = %q, want check_stopped", last.Event)
	}

	// a second stop finds nothing
	if res := e.mgr.StopCheck(e.staff, "Suspect"); res != StartNotChecked {
		t.Fatalf("second StopCheck = %v, want StartNotChecked", res)
	}
}

func TestStopCheckResolvesDisconnectedTargetByName(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.store.stop = []string{"effect clear {player}"}
	e.mgr.StartCheck(e.staff, "Suspect")
	e.mem.Leave(e.target.ID)

	if res := e.mgr.StopCheck(e.staff, "suspect"); res != StartOK {
		t.Fatalf("StopCheck = %v, want StartOK", res)
	}
	if e.mgr.IsChecked(e.target.ID) || e.freezer.IsFrozen(e.target.ID) {
		t.Fatal("session or freeze survived stop of disconnected target")
	}
	if len(e.commands.cmds) != 0 {
		t.Fatalf("hooks ran for a disconnected target: %v", e.commands.cmds)
	}
}

func TestVerdictsLeaveStopHooksAlone(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.store.stop = []string{"effect clear {player}"}

	e.mgr.StartCheck(e.staff, "Suspect")
	e.mgr.EndCheck(e.staff, "Suspect", "KillAura")
	if got := e.commands.containing("effect clear"); got != 0 {
		t.Fatalf("on-stop hook ran on a ban verdict: %v", e.commands.cmds)
	}
	if got := e.commands.containing("ban Suspect"); got != 1 {
		t.Fatalf("ban command missing: %v", e.commands.cmds)
	}

	e.mgr.StartCheck(e.staff, "Suspect")
	e.mgr.EndCheck(e.staff, "Suspect", "")
	if got := e.commands.containing("effect clear"); got != 0 {
		t.Fatalf("on-stop hook ran on a clean verdict: %v", e.commands.cmds)
	}
}

func TestEndCheckOnUncheckedPlayerClearsFreeze(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.freezer.Freeze(e.target.ID)

	if res := e.mgr.EndCheck(e.staff, "Suspect", ""); res != StartNotChecked {
		t.Fatalf("EndCheck = %v, want StartNotChecked", res)
	}
	if e.freezer.IsFrozen(e.target.ID) {
		t.Fatal("stale freeze not cleared by rejected end")
	}
}

func TestPauseAddTimeResumeFiresAtExtendedDeadline(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.mgr.StartCheck(e.staff, "Suspect")

	e.loop.Advance(100 * time.Second) // 200s remaining
	e.mgr.TogglePause(e.staff, "Suspect")
	if res := e.mgr.AddTime(e.staff, "Suspect", 60); res != StartOK {
		t.Fatal("AddTime while paused failed")
	}

	e.loop.Advance(30 * time.Minute)
	if got := e.commands.containing("Failed to respond"); got != 0 {
		t.Fatal("timeout fired while paused")
	}

	e.mgr.TogglePause(e.staff, "Suspect") // resume with 260s left
	e.loop.Advance(259 * time.Second)
	if got := e.commands.containing("Failed to respond"); got != 0 {
		t.Fatal("timeout fired before the extended deadline")
	}
	e.loop.Advance(2 * time.Second)
	if got := e.commands.containing("Failed to respond"); got != 1 {
		t.Fatalf("timeout ban count = %d, want 1", got)
	}
}

func TestCheatVerdictWithoutAutoBanSkipsCommand(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.mgr.SetCheats(&CheatCatalog{cheats: map[string]CheatDefinition{
		"aimassist": {BanTime: "7d"},
	}})
	e.mgr.StartCheck(e.staff, "Suspect")

	if res := e.mgr.EndCheck(e.staff, "Suspect", "AimAssist"); res != StartOK {
		t.Fatalf("EndCheck = %v, want StartOK", res)
	}
	if len(e.commands.cmds) != 0 {
		t.Fatalf("commands issued without auto-ban: %v", e.commands.cmds)
	}
	if e.mgr.IsChecked(e.target.ID) {
		t.Fatal("session survived verdict")
	}
	if len(e.transport.broadcasts) != 0 {
		t.Fatalf("public ban broadcast without a ban: %v", e.transport.broadcasts)
	}
	found := false
	for _, msg := range e.transport.staffOnly {
		if strings.Contains(msg, "punish manually") {
			found = true
		}
	}
	if !found {
		t.Fatal("manual punishment notice missing")
	}
}

func TestStartOnAlreadyFrozenTargetNotifiesStaff(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.freezer.Freeze(e.target.ID)

	if res := e.mgr.StartCheck(e.staff, "Suspect"); res != StartOK {
		t.Fatalf("StartCheck = %v, want StartOK", res)
	}
	found := false
	for _, msg := range e.transport.direct[e.staff.ID] {
		if strings.Contains(msg, "already frozen") {
			found = true
		}
	}
	if !found {
		t.Fatal("refused freeze not reported to the initiator")
	}
}

func TestAfkQueueTakesPrecedenceOverBypass(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.store.bypass["suspect"] = true
	e.tracker.UpdateActivity(e.target.ID)
	e.loop.Advance(2 * time.Minute)

	if res := e.mgr.StartCheck(e.staff, "Suspect"); res != StartQueuedAfk {
		t.Fatalf("StartCheck on AFK bypassed target = %v, want StartQueuedAfk", res)
	}
	if e.mgr.PendingCount() != 1 {
		t.Fatal("pending entry missing")
	}
}

func TestPendingStartAnnouncedOnlyOnSuccess(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.tracker.UpdateActivity(e.target.ID)
	e.loop.Advance(2 * time.Minute)
	e.mgr.StartCheck(e.staff, "Suspect")

	// the target lands on the bypass list while queued
	e.store.bypass["suspect"] = true
	e.tracker.UpdateActivity(e.target.ID)
	e.loop.Advance(2 * time.Second)

	if e.mgr.IsChecked(e.target.ID) {
		t.Fatal("check started on bypassed target")
	}
	if e.mgr.PendingCount() != 0 {
		t.Fatal("pending entry not consumed")
	}
	for _, msg := range e.transport.staffOnly {
		if strings.Contains(msg, "no longer AFK") {
			t.Fatalf("start announced despite rejection: %q", msg)
		}
	}
}

func TestSetConfigAffectsFutureSessions(t *testing.T) {
	e := newEnv(t, DefaultConfig())

	short := DefaultConfig()
	short.TimeoutSeconds = 5
	e.mgr.SetConfig(short)

	e.mgr.StartCheck(e.staff, "Suspect")
	e.loop.Advance(5 * time.Second)
	if e.mgr.IsChecked(e.target.ID) {
		t.Fatal("session survived the shortened timeout")
	}
}
