package hub

import (
	"testing"

	"github.com/zulandar/racetiming/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Organization{}, &models.Event{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

func TestRelayOwnsEvent_Matches(t *testing.T) {
	db := openTestDB(t)
	org := models.Organization{ShortName: "acme-racing"}
	if err := db.Create(&org).Error; err != nil {
		t.Fatal(err)
	}
	ev := models.Event{OrgID: org.ID, Name: "Summer Enduro"}
	if err := db.Create(&ev).Error; err != nil {
		t.Fatal(err)
	}

	h := &Hub{}
	if !h.relayOwnsEvent(db, "acme-racing", ev.ID) {
		t.Error("expected relay to own its org's event")
	}
}

func TestRelayOwnsEvent_WrongOrg(t *testing.T) {
	db := openTestDB(t)
	owner := models.Organization{ShortName: "acme-racing"}
	other := models.Organization{ShortName: "rival-racing"}
	if err := db.Create(&owner).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&other).Error; err != nil {
		t.Fatal(err)
	}
	ev := models.Event{OrgID: owner.ID, Name: "Summer Enduro"}
	if err := db.Create(&ev).Error; err != nil {
		t.Fatal(err)
	}

	h := &Hub{}
	if h.relayOwnsEvent(db, "rival-racing", ev.ID) {
		t.Error("relay from a different org must not be able to change this event's session")
	}
}

func TestRelayOwnsEvent_UnknownOrg(t *testing.T) {
	db := openTestDB(t)
	h := &Hub{}
	if h.relayOwnsEvent(db, "nobody", 1) {
		t.Error("expected false for an azp claim matching no organization")
	}
}

func TestRelayOwnsEvent_NilDB(t *testing.T) {
	h := &Hub{}
	if h.relayOwnsEvent(nil, "acme-racing", 1) {
		t.Error("expected false with a nil db")
	}
}

func TestRmonitorRaceInfoLine_EncodesSessionIDAndName(t *testing.T) {
	line := rmonitorRaceInfoLine(3, "Qualifying 1")
	want := `$B,"3","Qualifying 1"`
	if line != want {
		t.Errorf("line = %q, want %q", line, want)
	}
}
