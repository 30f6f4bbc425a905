package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lending record statuses the stock metrics depend on.
const (
	ClientStatusActive   = "ACTIVE"
	ClientStatusArchived = "ARCHIVED"

	LoanStatusPending   = "PENDING"
	LoanStatusActive    = "ACTIVE"
	LoanStatusPaidOff   = "PAID_OFF"
	LoanStatusDefaulted = "DEFAULTED"
)

// UserModel is a tenant staff account. Authentication lives upstream; only
// the fields needed for seat counting are stored here.
type UserModel struct {
	TenantScopedModel
	Email       string `gorm:"type:varchar(200);not null"`
	DisplayName string `gorm:"type:varchar(200)"`
	Role        string `gorm:"type:varchar(50);not null;default:'agent'"`
	IsActive    bool   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (UserModel) TableName() string {
	return "users"
}

// ClientModel is a borrower.
type ClientModel struct {
	TenantScopedModel
	FullName       string `gorm:"type:varchar(200);not null"`
	DocumentNumber string `gorm:"type:varchar(50)"`
	Phone          string `gorm:"type:varchar(50)"`
	Status         string `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
}

// TableName returns the table name for GORM
func (ClientModel) TableName() string {
	return "clients"
}

// LoanModel is a loan granted to a client.
type LoanModel struct {
	TenantScopedModel
	ClientID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Principal    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	InterestRate decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0"`
	Installments int             `gorm:"not null;default:1"`
	Status       string          `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	DisbursedAt  *time.Time
}

// TableName returns the table name for GORM
func (LoanModel) TableName() string {
	return "loans"
}

// PaymentModel is a repayment against a loan.
type PaymentModel struct {
	TenantScopedModel
	LoanID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PaidAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// DocumentModel is an uploaded file. SizeBytes feeds the storage metric.
type DocumentModel struct {
	TenantScopedModel
	OwnerType   string    `gorm:"type:varchar(20);not null"`
	OwnerID     uuid.UUID `gorm:"type:uuid;not null;index"`
	FileName    string    `gorm:"type:varchar(255);not null"`
	ContentType string    `gorm:"type:varchar(100)"`
	SizeBytes   int64     `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (DocumentModel) TableName() string {
	return "documents"
}

// MessageModel logs an outbound SMS or WhatsApp message.
type MessageModel struct {
	TenantScopedModel
	Channel   string `gorm:"type:varchar(20);not null;index"`
	Recipient string `gorm:"type:varchar(50);not null"`
	Body      string `gorm:"type:text"`
	Status    string `gorm:"type:varchar(20);not null;default:'QUEUED'"`
	SentAt    *time.Time
}

// TableName returns the table name for GORM
func (MessageModel) TableName() string {
	return "messages"
}

// ReportModel records a generated report.
type ReportModel struct {
	TenantScopedModel
	Name   string `gorm:"type:varchar(200);not null"`
	Format string `gorm:"type:varchar(10);not null;default:'pdf'"`
}

// TableName returns the table name for GORM
func (ReportModel) TableName() string {
	return "reports"
}
