//go:build integration

package db

import (
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/racetiming/internal/models"
)

// testSQLServer manages a Dolt SQL server lifecycle for integration tests.
// Dolt speaks the MySQL wire protocol, so it doubles as a throwaway MySQL
// server for tests without a real MySQL install.
type testSQLServer struct {
	Port int
	Dir  string
	cmd  *exec.Cmd
}

func startSQLServer(t *testing.T) *testSQLServer {
	t.Helper()
	dir := t.TempDir()

	init := exec.Command("dolt", "init")
	init.Dir = dir
	if out, err := init.CombinedOutput(); err != nil {
		t.Fatalf("dolt init: %s\n%s", err, out)
	}

	port := freePort(t)
	cmd := exec.Command("dolt", "sql-server", "--port", fmt.Sprintf("%d", port), "--host", "127.0.0.1")
	cmd.Dir = dir
	if err := cmd.Start(); err != nil {
		t.Fatalf("dolt sql-server start: %v", err)
	}

	srv := &testSQLServer{Port: port, Dir: dir, cmd: cmd}
	t.Cleanup(func() {
		srv.cmd.Process.Kill()
		srv.cmd.Wait()
	})
	waitForServer(t, port)
	return srv
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func waitForServer(t *testing.T, port int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("sql server not ready on port %d after 10s", port)
}

func TestIntegration_AutoMigrateAndOrganizationUpsert(t *testing.T) {
	srv := startSQLServer(t)
	adminDB, err := ConnectAdmin("127.0.0.1", srv.Port)
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}
	if err := CreateDatabase(adminDB, "racetiming_it"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	conn, err := Connect("127.0.0.1", srv.Port, "racetiming_it")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(conn); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	var tables []string
	if err := conn.Raw("SHOW TABLES").Scan(&tables).Error; err != nil {
		t.Fatalf("SHOW TABLES: %v", err)
	}
	tableSet := make(map[string]bool)
	for _, tbl := range tables {
		tableSet[tbl] = true
	}
	for _, expected := range []string{"organizations", "events", "sessions", "session_results", "car_lap_logs", "flag_logs", "relay_logs", "ops_alerts"} {
		if !tableSet[expected] {
			t.Errorf("expected table %q not found; got tables: %v", expected, tables)
		}
	}

	org := &models.Organization{ShortName: "wrl", ControlLogType: "generic-json"}
	if err := UpsertOrganization(conn, org); err != nil {
		t.Fatalf("UpsertOrganization (1st): %v", err)
	}
	org.ControlLogType = "none"
	if err := UpsertOrganization(conn, org); err != nil {
		t.Fatalf("UpsertOrganization (2nd): %v", err)
	}

	var count int64
	conn.Model(&models.Organization{}).Where("short_name = ?", "wrl").Count(&count)
	if count != 1 {
		t.Errorf("organization count = %d after double upsert, want 1", count)
	}

	var got models.Organization
	if err := conn.Where("short_name = ?", "wrl").First(&got).Error; err != nil {
		t.Fatalf("query organization: %v", err)
	}
	if got.ControlLogType != "none" {
		t.Errorf("ControlLogType = %q, want %q", got.ControlLogType, "none")
	}
}

func TestIntegration_AutoMigrate_Error(t *testing.T) {
	srv := startSQLServer(t)
	adminDB, err := ConnectAdmin("127.0.0.1", srv.Port)
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}
	if err := CreateDatabase(adminDB, "racetiming_closed"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	conn, err := Connect("127.0.0.1", srv.Port, "racetiming_closed")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sqlDB, _ := conn.DB()
	sqlDB.Close()

	if err := AutoMigrate(conn); err == nil {
		t.Fatal("expected error from AutoMigrate with closed DB")
	} else if !strings.Contains(err.Error(), "db: auto-migrate") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: auto-migrate")
	}
}
