package errors

import (
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("AppError", func() {
	Context("constructing a validation error", func() {
		It("carries the validation type and a 400 status", func() {
			err := NewValidationError("unknown service_id \"acme\"")

			Expect(err.Type).To(Equal(ErrorTypeValidation))
			Expect(err.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(err.Error()).To(Equal("validation: unknown service_id \"acme\""))
		})

		It("appends details in parentheses when present", func() {
			err := NewValidationError("invalid config").WithDetails("database.host is required")

			Expect(err.Error()).To(Equal("validation: invalid config (database.host is required)"))
		})
	})

	Context("wrapping a database/network failure", func() {
		It("keeps the cause reachable via Unwrap, as the repository layer relies on", func() {
			cause := errors.New("connection refused")
			wrapped := Wrap(cause, ErrorTypeDatabase, "failed to count pending blocks")

			Expect(wrapped.Type).To(Equal(ErrorTypeDatabase))
			Expect(wrapped.Cause).To(Equal(cause))
			Expect(wrapped.Unwrap()).To(Equal(cause))
			Expect(wrapped.StatusCode).To(Equal(http.StatusInternalServerError))
		})

		It("formats the wrapped message with Wrapf args, as adapter request-build failures do", func() {
			cause := errors.New("dial tcp: i/o timeout")
			wrapped := Wrapf(cause, ErrorTypeNetwork, "failed to fetch block %d", 104)

			Expect(wrapped.Message).To(Equal("failed to fetch block 104"))
			Expect(wrapped.Cause).To(Equal(cause))
		})

		It("NewDatabaseError names the failing operation", func() {
			cause := errors.New("connection lost")
			err := NewDatabaseError("insert fetch record", cause)

			Expect(err.Type).To(Equal(ErrorTypeDatabase))
			Expect(err.Message).To(ContainSubstring("insert fetch record"))
			Expect(err.Cause).To(Equal(cause))
		})
	})

	Context("classifying an error", func() {
		It("identifies an AppError's type and falls back to internal for bare errors", func() {
			validationErr := NewValidationError("bad input")
			bareErr := errors.New("unexpected")

			Expect(IsType(validationErr, ErrorTypeValidation)).To(BeTrue())
			Expect(IsType(validationErr, ErrorTypeDatabase)).To(BeFalse())
			Expect(GetType(bareErr)).To(Equal(ErrorTypeInternal))
			Expect(GetStatusCode(bareErr)).To(Equal(http.StatusInternalServerError))
		})
	})
})
