package errors

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// ErrorDump flattens an error chain into log-friendly fields.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Retryable  bool     `json:"retryable,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	// Store is set when a database driver error sits in the chain.
	Store *StoreError `json:"store,omitempty"`
}

// StoreError is the driver-level cause of a failed read or commit.
type StoreError struct {
	Driver     string `json:"driver"`
	Code       string `json:"code"`
	Message    string `json:"message,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

// Dump walks err once for its typed code, the wrapping chain and the
// underlying Postgres or SQLite error.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error(), Store: storeError(err)}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Retryable = MetadataFor(te.Code()).Retryable
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// Fields renders the dump for logger.WithFields, leaving out empty values.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error_code": string(d.Code), "error_chain": d.Chain}
	if d.Retryable {
		fields["retryable"] = true
	}
	if s := d.Store; s != nil {
		fields["store_driver"] = s.Driver
		fields["store_code"] = s.Code
		for key, value := range map[string]string{
			"store_detail":     s.Detail,
			"store_table":      s.Table,
			"store_column":     s.Column,
			"store_constraint": s.Constraint,
		} {
			if value != "" {
				fields[key] = value
			}
		}
	}
	return fields
}

func storeError(err error) *StoreError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &StoreError{
			Driver:     "postgres",
			Code:       pgErr.Code,
			Message:    pgErr.Message,
			Detail:     pgErr.Detail,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Constraint: pgErr.ConstraintName,
		}
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return &StoreError{
			Driver: "sqlite",
			Code:   strconv.Itoa(int(liteErr.ExtendedCode)),
		}
	}
	return nil
}
