package orchestrator

import "fmt"

// eventMarker is the substring §4.H uses to recognize a worker job or
// service as belonging to an event, regardless of which of the three
// canonical names it is.
func eventMarker(eventID uint) string {
	return fmt.Sprintf("evt-%d", eventID)
}

func processorJobName(orgShort string, eventID uint) string {
	return fmt.Sprintf("%s-evt-%d-event-processor", orgShort, eventID)
}

func loggerJobName(orgShort string, eventID uint) string {
	return fmt.Sprintf("%s-evt-%d-logger", orgShort, eventID)
}

func controlLogJobName(orgShort string, eventID uint) string {
	return fmt.Sprintf("%s-evt-%d-control-log", orgShort, eventID)
}

func processorServiceName(orgShort string, eventID uint) string {
	return processorJobName(orgShort, eventID) + "-svc"
}
