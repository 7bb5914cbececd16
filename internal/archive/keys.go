package archive

import "fmt"

// Object key layout: {org-short}/{event-id}/{category}[/{session-id}].json
// Stable and greppable by org then event, since that's how operators look
// things up after the fact.

func logsKey(orgShort string, eventID uint) string {
	return fmt.Sprintf("%s/%d/logs.json", orgShort, eventID)
}

func lapsKey(orgShort string, eventID, sessionID uint) string {
	return fmt.Sprintf("%s/%d/laps/%d.json", orgShort, eventID, sessionID)
}

func deviceDataKey(orgShort string, eventID uint) string {
	return fmt.Sprintf("%s/%d/device-data.json", orgShort, eventID)
}

func flagsKey(orgShort string, eventID, sessionID uint) string {
	return fmt.Sprintf("%s/%d/flags/%d.json", orgShort, eventID, sessionID)
}

func competitorsKey(orgShort string, eventID uint) string {
	return fmt.Sprintf("%s/%d/competitors.json", orgShort, eventID)
}
