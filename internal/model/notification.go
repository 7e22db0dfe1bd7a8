package model

type NotificationType string

const (
	NotifyExamGraded        NotificationType = "exam_graded"
	NotifyCertificateIssued NotificationType = "certificate_issued"
	NotifyExamCancelled     NotificationType = "exam_cancelled"
)

// swagger:model Notification
type Notification struct {
	BaseModel
	UserID  uint             `gorm:"index;type:bigint unsigned" json:"userId"`
	Type    NotificationType `gorm:"size:30;not null" json:"type"`
	Title   string           `gorm:"size:255;not null" json:"title"`
	Message string           `gorm:"type:text" json:"message"`
	Read    bool             `gorm:"default:false;index" json:"read"`
}

func (Notification) TableName() string {
	return "notifications"
}
