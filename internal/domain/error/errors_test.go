package error

import (
	"errors"
	"fmt"
	"testing"
)

func TestBaseErrorTypes(t *testing.T) {
	// Test to ensure all base error types are defined properly
	if ErrTenantNotFound.Error() != "tenant not found" {
		t.Errorf("ErrTenantNotFound has unexpected message: %s", ErrTenantNotFound.Error())
	}
	if ErrTrackingInconsistency.Error() != "migration applied but not recorded" {
		t.Errorf("ErrTrackingInconsistency has unexpected message: %s", ErrTrackingInconsistency.Error())
	}
}

func TestErrorCode(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{"InvalidIdentity", ErrInvalidIdentity, 4001},
		{"InvalidSlug", ErrInvalidSlug, 4002},
		{"TenantNotFound", ErrTenantNotFound, 4040},
		{"SchemaCreation", ErrSchemaCreation, 5001},
		{"MigrationExecution", ErrMigrationExecution, 5002},
		{"TrackingInconsistency", ErrTrackingInconsistency, 5003},
		{"Connection", ErrConnection, 5030},
		{"UnknownError", errors.New("unknown error"), 5000},
		{"WrappedError", fmt.Errorf("wrapped: %w", ErrInvalidSlug), 4002},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code := ErrorCode(tc.err)
			if code != tc.expected {
				t.Errorf("ErrorCode(%v) = %d, want %d", tc.err, code, tc.expected)
			}
		})
	}
}

func TestMigrationError(t *testing.T) {
	migErr := &MigrationError{
		Identity:   "org_123",
		SchemaName: "tenant_acme",
		Filename:   "0002_create_tasks.sql",
		Err:        ErrMigrationExecution,
	}

	expectedMsg := "migration 0002_create_tasks.sql failed for tenant org_123 (schema: tenant_acme): migration execution failed"
	if migErr.Error() != expectedMsg {
		t.Errorf("MigrationError.Error() = %s, want %s", migErr.Error(), expectedMsg)
	}

	if !errors.Is(migErr, ErrMigrationExecution) {
		t.Error("MigrationError should unwrap to ErrMigrationExecution")
	}

	fields := migErr.LogFields()
	if fields["filename"] != "0002_create_tasks.sql" {
		t.Errorf("LogFields filename = %v, want 0002_create_tasks.sql", fields["filename"])
	}
	if fields["error_code"] != CodeMigrationExecution {
		t.Errorf("LogFields error_code = %v, want %d", fields["error_code"], CodeMigrationExecution)
	}
}

func TestProvisioningError(t *testing.T) {
	t.Run("RolledBack", func(t *testing.T) {
		provErr := &ProvisioningError{
			Identity:   "org_123",
			SchemaName: "tenant_acme",
			RolledBack: true,
			Err:        ErrSchemaCreation,
		}

		expectedMsg := "provisioning failed for tenant org_123 (schema: tenant_acme, registration rolled back): failed to create tenant schema"
		if provErr.Error() != expectedMsg {
			t.Errorf("ProvisioningError.Error() = %s, want %s", provErr.Error(), expectedMsg)
		}
		if !errors.Is(provErr, ErrSchemaCreation) {
			t.Error("ProvisioningError should unwrap to ErrSchemaCreation")
		}
	})

	t.Run("NotRolledBack", func(t *testing.T) {
		provErr := &ProvisioningError{
			Identity:   "org_123",
			SchemaName: "tenant_acme",
			RolledBack: false,
			Err:        ErrMigrationExecution,
		}

		expectedMsg := "provisioning failed for tenant org_123 (schema: tenant_acme): migration execution failed"
		if provErr.Error() != expectedMsg {
			t.Errorf("ProvisioningError.Error() = %s, want %s", provErr.Error(), expectedMsg)
		}
		if provErr.LogFields()["rolled_back"] != false {
			t.Error("LogFields rolled_back should be false")
		}
	})
}

func TestErrorCheckHelpers(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", ErrConnection)
	if !IsConnectionError(wrapped) {
		t.Error("IsConnectionError should match wrapped ErrConnection")
	}
	if IsConnectionError(ErrTenantNotFound) {
		t.Error("IsConnectionError should not match ErrTenantNotFound")
	}

	migErr := NewMigrationError("org_1", "tenant_a", "0001_init.sql", ErrMigrationExecution)
	if !IsMigrationExecutionError(migErr) {
		t.Error("IsMigrationExecutionError should match through MigrationError")
	}

	if !IsTrackingInconsistencyError(fmt.Errorf("recording: %w", ErrTrackingInconsistency)) {
		t.Error("IsTrackingInconsistencyError should match wrapped error")
	}

	if !IsNotFoundError(ErrTenantNotFound) {
		t.Error("IsNotFoundError should match ErrTenantNotFound")
	}
}
