package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zulandar/racetiming/internal/bus"
	"github.com/zulandar/racetiming/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeSupervisor struct {
	mu       sync.Mutex
	jobs     map[string]JobSpec
	services map[string]ServiceSpec
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{jobs: map[string]JobSpec{}, services: map[string]ServiceSpec{}}
}

func (s *fakeSupervisor) JobExists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

func (s *fakeSupervisor) CreateJob(spec JobSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[spec.Name] = spec
	return nil
}

func (s *fakeSupervisor) DeleteJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
	return nil
}

func (s *fakeSupervisor) ListJobs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	return names, nil
}

func (s *fakeSupervisor) ServiceExists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.services[name]
	return ok
}

func (s *fakeSupervisor) CreateService(spec ServiceSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[spec.Name] = spec
	return nil
}

func (s *fakeSupervisor) DeleteService(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.services, name)
	return nil
}

func (s *fakeSupervisor) ListServices() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.services))
	for n := range s.services {
		names = append(names, n)
	}
	return names, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Organization{}, &models.Event{}))
	return db
}

func seedEvent(t *testing.T, db *gorm.DB, orgShort, controlLogType string) models.Event {
	t.Helper()
	org := models.Organization{ShortName: orgShort, ControlLogType: controlLogType}
	require.NoError(t, db.Create(&org).Error)
	ev := models.Event{OrgID: org.ID, Name: "Summer Enduro"}
	require.NoError(t, db.Create(&ev).Error)
	return ev
}

func TestNew_RequiresDBAndBus(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{DB: openTestDB(t)})
	require.Error(t, err)
}

func TestUpdateLiveEvents_MarksHeartbeatedEventsLive(t *testing.T) {
	db := openTestDB(t)
	ev1 := seedEvent(t, db, "acme", "")
	ev2 := seedEvent(t, db, "rival", "")
	require.NoError(t, db.Model(&models.Event{}).Where("id = ?", ev2.ID).Update("is_live", true).Error)

	o, err := New(Config{DB: db, Bus: bus.NewFake(), Supervisor: newFakeSupervisor()})
	require.NoError(t, err)

	err = o.updateLiveEvents(map[uint]bus.RelayConnectionEventEntry{
		ev1.ID: {EventID: ev1.ID, LastSeen: time.Now()},
	})
	require.NoError(t, err)

	var got1, got2 models.Event
	require.NoError(t, db.First(&got1, ev1.ID).Error)
	require.NoError(t, db.First(&got2, ev2.ID).Error)
	require.True(t, got1.IsLive)
	require.False(t, got2.IsLive)
}

func TestUpdateLiveEvents_NoHeartbeatsClearsAll(t *testing.T) {
	db := openTestDB(t)
	ev := seedEvent(t, db, "acme", "")
	require.NoError(t, db.Model(&models.Event{}).Where("id = ?", ev.ID).Update("is_live", true).Error)

	o, err := New(Config{DB: db, Bus: bus.NewFake(), Supervisor: newFakeSupervisor()})
	require.NoError(t, err)
	require.NoError(t, o.updateLiveEvents(map[uint]bus.RelayConnectionEventEntry{}))

	var got models.Event
	require.NoError(t, db.First(&got, ev.ID).Error)
	require.False(t, got.IsLive)
}

func TestEnsureJobs_CreatesProcessorLoggerAndService(t *testing.T) {
	db := openTestDB(t)
	ev := seedEvent(t, db, "acme", "")
	sup := newFakeSupervisor()
	o, err := New(Config{DB: db, Bus: bus.NewFake(), Supervisor: sup, ProcessorImage: "rtb:latest", LoggerImage: "rtb:latest"})
	require.NoError(t, err)

	require.NoError(t, o.ensureJobs(ev.ID))

	require.True(t, sup.JobExists(processorJobName("acme", ev.ID)))
	require.True(t, sup.JobExists(loggerJobName("acme", ev.ID)))
	require.True(t, sup.ServiceExists(processorServiceName("acme", ev.ID)))
	require.False(t, sup.JobExists(controlLogJobName("acme", ev.ID)))
}

func TestEnsureJobs_CreatesControlLogJobWhenConfigured(t *testing.T) {
	db := openTestDB(t)
	ev := seedEvent(t, db, "acme", "generic-json")
	sup := newFakeSupervisor()
	o, err := New(Config{DB: db, Bus: bus.NewFake(), Supervisor: sup})
	require.NoError(t, err)

	require.NoError(t, o.ensureJobs(ev.ID))

	require.True(t, sup.JobExists(controlLogJobName("acme", ev.ID)))
}

func TestEnsureJobs_IsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ev := seedEvent(t, db, "acme", "")
	sup := newFakeSupervisor()
	o, err := New(Config{DB: db, Bus: bus.NewFake(), Supervisor: sup})
	require.NoError(t, err)

	require.NoError(t, o.ensureJobs(ev.ID))
	require.NoError(t, o.ensureJobs(ev.ID))

	jobs, err := sup.ListJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 2) // processor + logger, not duplicated
}

func TestGCOrphanJobs_RemovesJobsForInactiveEvents(t *testing.T) {
	sup := newFakeSupervisor()
	require.NoError(t, sup.CreateJob(JobSpec{Name: "acme-evt-1-event-processor"}))
	require.NoError(t, sup.CreateJob(JobSpec{Name: "acme-evt-2-event-processor"}))

	o, err := New(Config{DB: openTestDB(t), Bus: bus.NewFake(), Supervisor: sup})
	require.NoError(t, err)

	require.NoError(t, o.gcOrphanJobs([]bus.RelayConnectionEventEntry{{EventID: 1}}))

	require.True(t, sup.JobExists("acme-evt-1-event-processor"))
	require.False(t, sup.JobExists("acme-evt-2-event-processor"))
}

func TestTeardownEventWorkers_RemovesJobsAndServicesByNameSubstring(t *testing.T) {
	sup := newFakeSupervisor()
	require.NoError(t, sup.CreateJob(JobSpec{Name: "acme-evt-7-event-processor"}))
	require.NoError(t, sup.CreateJob(JobSpec{Name: "acme-evt-7-logger"}))
	require.NoError(t, sup.CreateJob(JobSpec{Name: "acme-evt-8-logger"}))
	require.NoError(t, sup.CreateService(ServiceSpec{Name: "acme-evt-7-event-processor-svc"}))

	o, err := New(Config{DB: openTestDB(t), Bus: bus.NewFake(), Supervisor: sup})
	require.NoError(t, err)

	o.teardownEventWorkers(7)

	require.False(t, sup.JobExists("acme-evt-7-event-processor"))
	require.False(t, sup.JobExists("acme-evt-7-logger"))
	require.True(t, sup.JobExists("acme-evt-8-logger"))
	require.False(t, sup.ServiceExists("acme-evt-7-event-processor-svc"))
}

func TestHandleExpired_PublishesShutdownAndDeletesHeartbeat(t *testing.T) {
	fake := bus.NewFake()
	require.NoError(t, fake.SetRelayHeartbeat(context.Background(), 7, bus.RelayConnectionEventEntry{EventID: 7, LastSeen: time.Now()}))

	sub, cancel, err := fake.SubscribeShutdownSignal(context.Background())
	require.NoError(t, err)
	defer cancel()

	o, err := New(Config{DB: openTestDB(t), Bus: fake, Supervisor: newFakeSupervisor(), DrainWait: time.Millisecond})
	require.NoError(t, err)

	o.handleExpired(context.Background(), []bus.RelayConnectionEventEntry{{EventID: 7, LastSeen: time.Now().Add(-time.Hour)}})

	select {
	case ids := <-sub:
		require.Equal(t, []uint{7}, ids)
	case <-time.After(time.Second):
		t.Fatal("expected a shutdown signal")
	}

	hb, err := fake.RelayHeartbeats(context.Background())
	require.NoError(t, err)
	require.NotContains(t, hb, uint(7))
}

func TestTick_ExpiresStaleAndEnsuresActive(t *testing.T) {
	db := openTestDB(t)
	activeEvent := seedEvent(t, db, "acme", "")
	staleEvent := seedEvent(t, db, "rival", "")

	fake := bus.NewFake()
	require.NoError(t, fake.SetRelayHeartbeat(context.Background(), activeEvent.ID, bus.RelayConnectionEventEntry{EventID: activeEvent.ID, LastSeen: time.Now()}))
	require.NoError(t, fake.SetRelayHeartbeat(context.Background(), staleEvent.ID, bus.RelayConnectionEventEntry{EventID: staleEvent.ID, LastSeen: time.Now().Add(-time.Hour)}))

	sup := newFakeSupervisor()
	o, err := New(Config{DB: db, Bus: fake, Supervisor: sup, ExpiredTimeout: 10 * time.Minute, DrainWait: time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, o.tick(context.Background()))

	require.True(t, sup.JobExists(processorJobName("acme", activeEvent.ID)))
	require.False(t, sup.JobExists(processorJobName("rival", staleEvent.ID)))

	var got models.Event
	require.NoError(t, db.First(&got, activeEvent.ID).Error)
	require.True(t, got.IsLive)
}
