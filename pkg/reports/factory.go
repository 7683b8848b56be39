package reports

import "fmt"

// NewReportGenerator creates a report generator based on the report type.
func NewReportGenerator(reportType ReportType, s ReportStore) (Generator, error) {
	switch reportType {
	case ReportTypeExchangeLog:
		return NewExchangeLogReport(s), nil
	case ReportTypeInteractions:
		return NewInteractionReport(s), nil
	default:
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}
}
