package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/luiznunees/backend-canaldireto/internal/domain"
	"github.com/luiznunees/backend-canaldireto/internal/evolution"
	"github.com/luiznunees/backend-canaldireto/internal/service"
	"github.com/luiznunees/backend-canaldireto/internal/store"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeProvider struct {
	createErr   error
	createCalls int

	pairingCode  string
	pairingErr   error
	pairingCalls int

	// states scripts ConnectionState answers per call; the entry "error"
	// produces a transport failure, the last entry repeats when exhausted.
	// An empty script always fails.
	states     []string
	stateCalls int

	profile      evolution.Profile
	profileErr   error
	profileCalls int

	logoutErr error
	deleteErr error

	sendResp json.RawMessage
	sendErr  error
}

func (f *fakeProvider) CreateInstance(ctx context.Context, name string) error {
	f.createCalls++
	return f.createErr
}

func (f *fakeProvider) PairingCode(ctx context.Context, name string) (string, error) {
	f.pairingCalls++
	if f.pairingErr != nil {
		return "", f.pairingErr
	}
	return f.pairingCode, nil
}

func (f *fakeProvider) ConnectionState(ctx context.Context, name string) (string, error) {
	f.stateCalls++
	if len(f.states) == 0 {
		return "", errors.New("connection state unavailable")
	}
	i := f.stateCalls - 1
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	if f.states[i] == "error" {
		return "", errors.New("connection state unavailable")
	}
	return f.states[i], nil
}

func (f *fakeProvider) FetchProfile(ctx context.Context, name string) (evolution.Profile, error) {
	f.profileCalls++
	if f.profileErr != nil {
		return evolution.Profile{}, f.profileErr
	}
	return f.profile, nil
}

func (f *fakeProvider) Logout(ctx context.Context, name string) error { return f.logoutErr }

func (f *fakeProvider) DeleteInstance(ctx context.Context, name string) error { return f.deleteErr }

func (f *fakeProvider) SendText(ctx context.Context, name, number, text string) (json.RawMessage, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.sendResp, nil
}

func setupStore(t *testing.T) *store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	st := store.New(db)
	if err := st.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return st
}

func seedUser(t *testing.T, st *store.Store, id, phone string) {
	t.Helper()
	if err := st.DB.Create(&domain.User{ID: id, Name: "Test Owner", PhoneNumber: phone}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func newService(st *store.Store, p service.Provider) *service.InstanceService {
	return service.NewInstanceService(st, p, service.PollConfig{Attempts: 5, Delay: time.Millisecond})
}

func TestSetupCreatesInstance(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{pairingCode: "ABC123"}
	svc := newService(st, p)

	res, err := svc.Setup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !res.Created {
		t.Fatalf("expected created result")
	}
	if p.createCalls != 1 {
		t.Fatalf("expected 1 remote create, got %d", p.createCalls)
	}
	if res.QRCode == nil || *res.QRCode != "ABC123" {
		t.Fatalf("expected pairing code ABC123, got %v", res.QRCode)
	}

	inst := res.Instance
	if !strings.HasPrefix(inst.InstanceName, "5511999990000_") {
		t.Fatalf("instance name %q not derived from phone", inst.InstanceName)
	}
	if len(inst.InstanceName) != len("5511999990000_")+4 {
		t.Fatalf("instance name %q missing 4-digit suffix", inst.InstanceName)
	}
	if inst.Status != domain.StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", inst.Status)
	}
	if inst.ConnectionAttempts != 1 {
		t.Fatalf("expected connection_attempts 1, got %d", inst.ConnectionAttempts)
	}
	if !inst.IsActive {
		t.Fatalf("expected active record")
	}
	if inst.QRCode == nil || *inst.QRCode != "ABC123" {
		t.Fatalf("expected persisted pairing code, got %v", inst.QRCode)
	}
}

func TestSetupIsIdempotent(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{pairingCode: "ABC123", states: []string{domain.RemoteStateClose}}
	svc := newService(st, p)

	first, err := svc.Setup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("first setup: %v", err)
	}
	second, err := svc.Setup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second setup: %v", err)
	}
	if second.Created {
		t.Fatalf("second setup must not create")
	}
	if p.createCalls != 1 {
		t.Fatalf("expected exactly 1 remote create, got %d", p.createCalls)
	}
	if second.Instance.InstanceName != first.Instance.InstanceName {
		t.Fatalf("instance name changed across setups: %q vs %q",
			first.Instance.InstanceName, second.Instance.InstanceName)
	}

	var active int64
	if err := st.DB.Model(&domain.InstanceRecord{}).
		Where("user_id = ? AND is_active = ?", "u1", true).
		Count(&active).Error; err != nil {
		t.Fatalf("count active: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected exactly 1 active record, got %d", active)
	}
}

func TestSetupConnectedInstanceSkipsCreateAndPairing(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{pairingCode: "ABC123"}
	svc := newService(st, p)

	if _, err := svc.Setup(context.Background(), "u1"); err != nil {
		t.Fatalf("first setup: %v", err)
	}
	p.states = []string{domain.RemoteStateOpen}
	p.pairingCalls = 0

	res, err := svc.Setup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("resync setup: %v", err)
	}
	if p.createCalls != 1 {
		t.Fatalf("resync must not call remote create again, got %d calls", p.createCalls)
	}
	if p.pairingCalls != 0 {
		t.Fatalf("connected instance must not refresh pairing code")
	}
	if res.Instance.Status != domain.StatusConnected {
		t.Fatalf("expected connected, got %s", res.Instance.Status)
	}
	if res.QRCode != nil {
		t.Fatalf("expected no pairing code for connected instance")
	}
}

func TestSetupDegradedWhenStateFetchFails(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{pairingCode: "ABC123"}
	svc := newService(st, p)

	first, err := svc.Setup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("first setup: %v", err)
	}

	// Empty script: every state fetch errors out.
	p.states = nil

	res, err := svc.Setup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("degraded setup must not error: %v", err)
	}
	if res.QRCode != nil {
		t.Fatalf("degraded setup must not return a pairing code")
	}
	if res.Instance.Status != first.Instance.Status {
		t.Fatalf("degraded setup must leave status unchanged, got %s", res.Instance.Status)
	}
}

func TestSetupFailsWhenRemoteCreateFails(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{createErr: errors.New("provider down")}
	svc := newService(st, p)

	_, err := svc.Setup(context.Background(), "u1")
	if !errors.Is(err, service.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	var count int64
	if err := st.DB.Model(&domain.InstanceRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("no record may be persisted without a confirmed remote instance, got %d", count)
	}
}

func TestSetupUnknownUser(t *testing.T) {
	st := setupStore(t)
	svc := newService(st, &fakeProvider{})

	_, err := svc.Setup(context.Background(), "ghost")
	if !errors.Is(err, service.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSetupMissingPhone(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "")
	svc := newService(st, &fakeProvider{})

	_, err := svc.Setup(context.Background(), "u1")
	if !errors.Is(err, service.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestSyncStopsOnFirstOpen(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{pairingCode: "ABC123"}
	svc := newService(st, p)

	if _, err := svc.Setup(context.Background(), "u1"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	p.states = []string{domain.RemoteStateClose, domain.RemoteStateClose, domain.RemoteStateOpen}
	p.stateCalls = 0
	p.profile = evolution.Profile{Name: "Ana", PictureURL: "https://example.com/ana.png"}

	res, err := svc.Sync(context.Background(), "u1")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if p.stateCalls != 3 {
		t.Fatalf("expected early exit after 3 polls, got %d", p.stateCalls)
	}
	if p.profileCalls != 1 {
		t.Fatalf("expected 1 profile fetch, got %d", p.profileCalls)
	}
	if !res.StatusChanged {
		t.Fatalf("expected statusChanged")
	}

	inst := res.Instance
	if inst.Status != domain.StatusConnected {
		t.Fatalf("expected connected, got %s", inst.Status)
	}
	if inst.ConnectionAttempts != 0 {
		t.Fatalf("expected connection_attempts reset, got %d", inst.ConnectionAttempts)
	}
	if inst.ProfileName == nil || *inst.ProfileName != "Ana" {
		t.Fatalf("expected profile name Ana, got %v", inst.ProfileName)
	}
	if inst.LastConnectionAt == nil {
		t.Fatalf("expected last_connection_at to be set")
	}
}

func TestSyncFailingProviderCompletes(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{pairingCode: "ABC123"}
	svc := newService(st, p)

	setupRes, err := svc.Setup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	attemptsBefore := setupRes.Instance.ConnectionAttempts

	p.states = nil // every poll fails
	p.stateCalls = 0

	done := make(chan struct{})
	var res service.SyncResult
	go func() {
		defer close(done)
		res, err = svc.Sync(context.Background(), "u1")
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("sync did not complete")
	}
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if p.stateCalls != 5 {
		t.Fatalf("expected exactly 5 polls, got %d", p.stateCalls)
	}
	if res.Instance.Status != domain.StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", res.Instance.Status)
	}
	if res.Instance.ConnectionAttempts != attemptsBefore+1 {
		t.Fatalf("expected connection_attempts %d, got %d", attemptsBefore+1, res.Instance.ConnectionAttempts)
	}
	if res.StatusChanged {
		t.Fatalf("status did not change, yet statusChanged reported")
	}
}

func TestSyncRefreshesPairingCodeWhenDisconnected(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{pairingCode: "FIRST"}
	svc := newService(st, p)

	if _, err := svc.Setup(context.Background(), "u1"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	p.states = []string{domain.RemoteStateClose}
	p.pairingCode = "FRESH"

	res, err := svc.Sync(context.Background(), "u1")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.QRCode == nil || *res.QRCode != "FRESH" {
		t.Fatalf("expected refreshed pairing code, got %v", res.QRCode)
	}
	if res.Instance.QRCode == nil || *res.Instance.QRCode != "FRESH" {
		t.Fatalf("expected persisted pairing code, got %v", res.Instance.QRCode)
	}
}

func TestSyncNoActiveInstance(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	svc := newService(st, &fakeProvider{})

	_, err := svc.Sync(context.Background(), "u1")
	if !errors.Is(err, service.ErrNoActiveInstance) {
		t.Fatalf("expected ErrNoActiveInstance, got %v", err)
	}
}

func TestDisconnectClearsConnectionState(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{pairingCode: "ABC123", states: []string{domain.RemoteStateOpen}}
	p.profile = evolution.Profile{Name: "Ana"}
	svc := newService(st, p)

	if _, err := svc.Setup(context.Background(), "u1"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := svc.Sync(context.Background(), "u1"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	rec, err := svc.Disconnect(context.Background(), "u1")
	if err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if rec.Status != domain.StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", rec.Status)
	}
	if rec.ProfileName != nil || rec.ProfilePictureURL != nil || rec.QRCode != nil {
		t.Fatalf("expected profile and pairing code cleared, got %+v", rec)
	}
	if !rec.IsActive {
		t.Fatalf("disconnect must not deactivate the record")
	}
}

func TestDisconnectLogoutFailureLeavesRecordUntouched(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{pairingCode: "ABC123"}
	svc := newService(st, p)

	setupRes, err := svc.Setup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	p.logoutErr = errors.New("logout boom")
	_, err = svc.Disconnect(context.Background(), "u1")
	if !errors.Is(err, service.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	after, err := svc.ActiveInstance(context.Background(), "u1")
	if err != nil {
		t.Fatalf("active instance: %v", err)
	}
	if after.Status != setupRes.Instance.Status {
		t.Fatalf("status mutated on failed logout: %s", after.Status)
	}
	if after.QRCode == nil || *after.QRCode != "ABC123" {
		t.Fatalf("pairing code mutated on failed logout: %v", after.QRCode)
	}
}

func TestDeleteSoftDeletes(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{pairingCode: "ABC123"}
	svc := newService(st, p)

	if _, err := svc.Setup(context.Background(), "u1"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	rec, err := svc.Delete(context.Background(), "u1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.IsActive {
		t.Fatalf("expected is_active false")
	}
	if rec.Status != domain.StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", rec.Status)
	}

	if _, err := svc.ActiveInstance(context.Background(), "u1"); !errors.Is(err, service.ErrNoActiveInstance) {
		t.Fatalf("expected no active instance after delete, got %v", err)
	}
}

func TestDeleteRemoteNotFoundStillDeactivates(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{pairingCode: "ABC123"}
	svc := newService(st, p)

	if _, err := svc.Setup(context.Background(), "u1"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	p.deleteErr = fmt.Errorf("%w: gone", evolution.ErrInstanceNotFound)
	rec, err := svc.Delete(context.Background(), "u1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.IsActive {
		t.Fatalf("expected is_active false when remote reports not found")
	}
}

func TestDeleteRemoteErrorStillDeactivates(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{pairingCode: "ABC123"}
	svc := newService(st, p)

	if _, err := svc.Setup(context.Background(), "u1"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	p.deleteErr = errors.New("provider down")
	rec, err := svc.Delete(context.Background(), "u1")
	if err != nil {
		t.Fatalf("delete must not fail on unreachable provider: %v", err)
	}
	if rec.IsActive {
		t.Fatalf("expected is_active false despite remote failure")
	}
}

func TestSetupAfterDeleteCreatesNewRecord(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{pairingCode: "ABC123"}
	svc := newService(st, p)

	first, err := svc.Setup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := svc.Delete(context.Background(), "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	second, err := svc.Setup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second setup: %v", err)
	}
	if !second.Created {
		t.Fatalf("expected a fresh record, not a reactivated one")
	}
	if second.Instance.ID == first.Instance.ID {
		t.Fatalf("soft-deleted record was reused")
	}
	if p.createCalls != 2 {
		t.Fatalf("expected 2 remote creates, got %d", p.createCalls)
	}
}

func TestSendTextRequiresConnectedInstance(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "u1", "5511999990000")
	p := &fakeProvider{pairingCode: "ABC123", sendResp: json.RawMessage(`{"sent":true}`)}
	svc := newService(st, p)

	if _, err := svc.Setup(context.Background(), "u1"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err := svc.SendText(context.Background(), "u1", "5511988887777", "hello")
	if !errors.Is(err, service.ErrInstanceNotConnected) {
		t.Fatalf("expected ErrInstanceNotConnected, got %v", err)
	}

	p.states = []string{domain.RemoteStateOpen}
	if _, err := svc.Sync(context.Background(), "u1"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	out, err := svc.SendText(context.Background(), "u1", "5511988887777", "hello")
	if err != nil {
		t.Fatalf("send text: %v", err)
	}
	if string(out) != `{"sent":true}` {
		t.Fatalf("unexpected relay body %s", out)
	}
}
