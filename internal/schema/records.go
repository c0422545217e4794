// Package schema defines typed record contracts for every stage of the pipeline.
//
// Raw records mirror the input files, where every field is optional text, plus
// the ingest metadata of the batch they arrived in. Clean records are what the
// cleaner guarantees. Feature records carry the engineered columns. Tables are
// turned into records with Decode, which maps columns to fields by db tag.
package schema

import (
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
)

// Age bounds accepted by CleanCustomer.Validate
const (
	MinAge = 0
	MaxAge = 120
)

// Ingest identifies the load a raw record came from
type Ingest struct {
	IngestBatchID uuid.UUID `json:"ingest_batch_id"`
	IngestedAt    time.Time `json:"ingested_at"`
	Source        string    `json:"source"` // CSV file, API, or external database
}

// NewIngest starts a new batch from source at the given time
func NewIngest(source string, at time.Time) Ingest {
	return Ingest{
		IngestBatchID: uuid.New(),
		IngestedAt:    at.UTC(),
		Source:        source,
	}
}

// SetIngest replaces the ingest metadata; promoted to every raw record
func (i *Ingest) SetIngest(meta Ingest) {
	*i = meta
}

// RawCustomer is a customers.csv row as read, every field text
type RawCustomer struct {
	CustomerID string  `json:"customer_id" db:"customer_id"`
	Name       *string `json:"name" db:"name"`
	Email      *string `json:"email" db:"email"`
	Age        *string `json:"age" db:"age"`
	SignupDate *string `json:"signup_date" db:"signup_date"`

	Ingest `db:"-"`
}

// RawProduct is a products.csv row as read
type RawProduct struct {
	ProductID   string  `json:"product_id" db:"product_id"`
	ProductName *string `json:"product_name" db:"product_name"`
	Category    *string `json:"category" db:"category"`
	Price       *string `json:"price" db:"price"`

	Ingest `db:"-"`
}

// RawTransaction is a transactions.csv row as read
type RawTransaction struct {
	TransactionID string  `json:"transaction_id" db:"transaction_id"`
	CustomerID    string  `json:"customer_id" db:"customer_id"`
	ProductID     *string `json:"product_id" db:"product_id"`
	TotalPrice    *string `json:"total_price" db:"total_price"`
	Quantity      *string `json:"quantity" db:"quantity"`
	PurchaseDate  *string `json:"purchase_date" db:"purchase_date"`

	Ingest `db:"-"`
}

// CleanCustomer is a customer row after cleaning
type CleanCustomer struct {
	CustomerID string    `json:"customer_id" db:"customer_id"`
	Name       string    `json:"name" db:"name"`
	Email      string    `json:"email" db:"email"`
	Age        *int64    `json:"age,omitempty" db:"age"`
	SignupDate time.Time `json:"signup_date" db:"signup_date"`
}

// Validate checks the email syntax and, when present, the age range
func (c CleanCustomer) Validate() error {
	var errs []error
	if c.CustomerID == "" {
		errs = append(errs, errors.New("customer_id is empty"))
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		errs = append(errs, fmt.Errorf("invalid email %q: %w", c.Email, err))
	}
	if c.Age != nil && (*c.Age < MinAge || *c.Age > MaxAge) {
		errs = append(errs, fmt.Errorf("invalid age %d", *c.Age))
	}
	if c.SignupDate.IsZero() {
		errs = append(errs, errors.New("signup_date is missing"))
	}
	return errors.Join(errs...)
}

// CleanProduct is a product row after cleaning
type CleanProduct struct {
	ProductID   string   `json:"product_id" db:"product_id"`
	ProductName string   `json:"product_name" db:"product_name"`
	Category    *string  `json:"category,omitempty" db:"category"`
	Price       *float64 `json:"price" db:"price"`
}

// Validate checks the identifiers and rejects a negative price
func (p CleanProduct) Validate() error {
	var errs []error
	if p.ProductID == "" {
		errs = append(errs, errors.New("product_id is empty"))
	}
	if p.ProductName == "" {
		errs = append(errs, errors.New("product_name is empty"))
	}
	if p.Price != nil && *p.Price < 0 {
		errs = append(errs, fmt.Errorf("negative price %g", *p.Price))
	}
	return errors.Join(errs...)
}

// CleanTransaction is a transaction row after cleaning
type CleanTransaction struct {
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	CustomerID    string    `json:"customer_id" db:"customer_id"`
	ProductID     string    `json:"product_id" db:"product_id"`
	TotalPrice    *float64  `json:"total_price,omitempty" db:"total_price"`
	Quantity      *int64    `json:"quantity" db:"quantity"`
	PurchaseDate  time.Time `json:"purchase_date" db:"purchase_date"`
}

// Validate rejects missing identifiers or purchase date and a negative quantity
func (t CleanTransaction) Validate() error {
	var errs []error
	if t.TransactionID == "" || t.CustomerID == "" || t.ProductID == "" {
		errs = append(errs, errors.New("missing identifier"))
	}
	if t.Quantity != nil && *t.Quantity < 0 {
		errs = append(errs, fmt.Errorf("negative quantity %d", *t.Quantity))
	}
	if t.PurchaseDate.IsZero() {
		errs = append(errs, errors.New("purchase_date is missing"))
	}
	return errors.Join(errs...)
}

// CustomerFeatures is one row of the customer feature table
type CustomerFeatures struct {
	CleanCustomer

	TotalSpent       float64 `json:"total_spent" db:"total_spent"`
	NumPurchases     int64   `json:"num_purchases" db:"num_purchases"`
	AvgPurchaseValue float64 `json:"avg_purchase_value" db:"avg_purchase_value"`
	RecencyDays      int64   `json:"recency_days" db:"recency_days"`
	DaysSinceSignup  *int64  `json:"days_since_signup" db:"days_since_signup"`
	TopCategory      string  `json:"top_category" db:"top_category"`
}

// ProductFeatures is one row of the product feature table
type ProductFeatures struct {
	CleanProduct

	PopularityScore    int64 `json:"popularity_score" db:"popularity_score"`
	CategoryPopularity int64 `json:"category_popularity" db:"category_popularity"`
}

// TransactionFeatures is one row of the transaction feature table
type TransactionFeatures struct {
	CleanTransaction

	DaysSinceLastPurchase float64 `json:"days_since_last_purchase" db:"days_since_last_purchase"`
}
