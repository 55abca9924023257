package queue

const (
	TypeNotificationDeliver = "notification:deliver"
	TypePayrollGenerate     = "payroll:generate"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// PayrollGeneratePayload asks for monthly payroll generation. A zero Month
// means the month the task runs in.
type PayrollGeneratePayload struct {
	Month          int    `json:"month,omitempty"`
	Year           int    `json:"year,omitempty"`
	CompanyID      string `json:"company_id,omitempty"`
	AttendanceDays int    `json:"attendance_days,omitempty"`
}
