package repositories

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/database"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func setupMockDB(t *testing.T) (database.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.NewDatabaseInstance(sqlx.NewDb(db, "postgres"), getTestLogger()), mock
}

var tenantColumns = []string{
	"id", "slug", "name", "external_base_url", "encrypted_credentials", "active",
	"ai_directives", "display", "field_mapping", "created_at", "updated_at",
}

var patientColumns = []string{
	"id", "tenant_id", "name", "phone", "email", "national_id", "association_category",
	"responsible_name", "responsible_national_id", "membership_status", "external_id",
	"sync_status", "attributes", "last_context_update", "created_at", "updated_at",
}

var conversationColumns = []string{
	"conversation_id", "tenant_id", "state", "state_data", "version", "created_at", "updated_at",
}

func TestTenantRepository_GetBySlug(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTenantRepository(db, getTestLogger())
	tenantID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM tenants WHERE slug = \$1`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows(tenantColumns).AddRow(
			tenantID.String(), "acme", "Acme Association", "https://acme.example", []byte{1, 2, 3}, true,
			[]byte(`["be kind"]`), []byte(`{"primary_color":"#00ff00"}`), []byte(`{}`), now, now,
		))

	tenant, err := repo.GetBySlug(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, tenantID, tenant.ID)
	assert.Equal(t, "acme", tenant.Slug)
	assert.Equal(t, []string{"be kind"}, tenant.AIDirectives.Data)
	assert.Equal(t, "#00ff00", tenant.Display.Data.PrimaryColor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantRepository_GetByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTenantRepository(db, getTestLogger())
	tenantID := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM tenants WHERE id = \$1`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), tenantID)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantRepository_GetBySlug_DatabaseError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTenantRepository(db, getTestLogger())

	mock.ExpectQuery(`SELECT .* FROM tenants`).WillReturnError(sql.ErrConnDone)

	_, err := repo.GetBySlug(context.Background(), "acme")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, httperror.GetStatusCode(err))
}

func patientRow(id, tenantID uuid.UUID, status string, externalID any) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(append(patientColumns, "inserted")).AddRow(
		id.String(), tenantID.String(), "Maria Silva", "85996201636", nil, "12345678901", "direct",
		nil, nil, status, externalID, "synced", []byte(`{"tipo_associacao":"paciente"}`), now, now, now, true,
	)
}

func TestPatientRepository_FindByPhone(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPatientRepository(db, getTestLogger())
	tenantID := uuid.New()
	patientID := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM patients WHERE tenant_id = \$1 AND phone = \$2`).
		WithArgs(sqlmock.AnyArg(), "85996201636").
		WillReturnRows(sqlmock.NewRows(patientColumns).AddRow(
			patientID.String(), tenantID.String(), "Maria Silva", "85996201636", nil, "12345678901", "direct",
			nil, nil, "MEMBER", "ext-1", "synced", []byte(`{}`), nil, time.Now(), time.Now(),
		))

	patient, err := repo.FindByPhone(context.Background(), tenantID, "85996201636")
	require.NoError(t, err)
	require.NotNil(t, patient)
	assert.Equal(t, patientID, patient.ID)
	assert.Equal(t, models.MembershipMember, patient.MembershipStatus)
	assert.Equal(t, "ext-1", models.StringValue(patient.ExternalID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_FindByPhone_Absent(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPatientRepository(db, getTestLogger())

	mock.ExpectQuery(`SELECT .* FROM patients`).WillReturnError(sql.ErrNoRows)

	patient, err := repo.FindByPhone(context.Background(), uuid.New(), "85996201636")
	require.NoError(t, err)
	assert.Nil(t, patient)
}

func TestPatientRepository_GetByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPatientRepository(db, getTestLogger())

	mock.ExpectQuery(`SELECT .* FROM patients WHERE tenant_id = \$1 AND id = \$2`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), uuid.New(), uuid.New())
	assert.True(t, IsNotFound(err))
}

func TestPatientRepository_Upsert(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPatientRepository(db, getTestLogger())
	tenantID := uuid.New()
	patientID := uuid.New()

	mock.ExpectQuery(`INSERT INTO patients .* ON CONFLICT \(tenant_id, phone\) DO UPDATE SET .* RETURNING .*\(xmax = 0\) AS inserted`).
		WithArgs(
			patientID, tenantID, "Maria Silva", "85996201636", nil, sqlmock.AnyArg(), "direct",
			nil, nil, "MEMBER", sqlmock.AnyArg(), "synced", `{"tipo_associacao":"paciente"}`, nil,
		).
		WillReturnRows(patientRow(patientID, tenantID, "MEMBER", "ext-1"))

	result, err := repo.Upsert(context.Background(), &models.PatientRecord{
		ID:                  patientID,
		TenantID:            tenantID,
		Name:                "Maria Silva",
		Phone:               "85996201636",
		NationalID:          models.StringPtr("12345678901"),
		AssociationCategory: models.AssociationDirect,
		MembershipStatus:    models.MembershipMember,
		ExternalID:          models.StringPtr("ext-1"),
		SyncStatus:          models.SyncSynced,
		Attributes:          database.NewJSONB(map[string]any{"tipo_associacao": "paciente"}),
	})
	require.NoError(t, err)
	assert.True(t, result.Inserted)
	assert.Equal(t, "paciente", result.Attributes.Data["tipo_associacao"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_Upsert_MemberWithoutExternalID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPatientRepository(db, getTestLogger())

	_, err := repo.Upsert(context.Background(), &models.PatientRecord{
		TenantID:         uuid.New(),
		Name:             "Maria Silva",
		Phone:            "85996201636",
		MembershipStatus: models.MembershipMember,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationStateRepository_GetOrCreate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewConversationStateRepository(db, getTestLogger())
	tenantID := uuid.New()
	now := time.Now()

	mock.ExpectExec(`INSERT INTO conversation_states .* ON CONFLICT \(tenant_id, conversation_id\) DO NOTHING`).
		WithArgs("conv-1", tenantID, "greeting").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM conversation_states WHERE tenant_id = \$1 AND conversation_id = \$2`).
		WithArgs(tenantID, "conv-1").
		WillReturnRows(sqlmock.NewRows(conversationColumns).AddRow("conv-1", tenantID.String(), "greeting", []byte(`{}`), 1, now, now))

	state, err := repo.GetOrCreate(context.Background(), tenantID, "conv-1", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "greeting", state.State)
	assert.Equal(t, 1, state.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationStateRepository_GetOrCreate_SameIDOtherTenant(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewConversationStateRepository(db, getTestLogger())
	tenantA, tenantB := uuid.New(), uuid.New()
	now := time.Now()
	const id = "5585996201636"

	for _, tenantID := range []uuid.UUID{tenantA, tenantB} {
		mock.ExpectExec(`INSERT INTO conversation_states .* ON CONFLICT \(tenant_id, conversation_id\)`).
			WithArgs(id, tenantID, "greeting").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT .* FROM conversation_states WHERE tenant_id = \$1 AND conversation_id = \$2`).
			WithArgs(tenantID, id).
			WillReturnRows(sqlmock.NewRows(conversationColumns).AddRow(id, tenantID.String(), "greeting", []byte(`{}`), 1, now, now))
	}

	first, err := repo.GetOrCreate(context.Background(), tenantA, id, "greeting")
	require.NoError(t, err)
	second, err := repo.GetOrCreate(context.Background(), tenantB, id, "greeting")
	require.NoError(t, err)

	assert.Equal(t, tenantA, first.TenantID)
	assert.Equal(t, tenantB, second.TenantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationStateRepository_Transition(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewConversationStateRepository(db, getTestLogger())
	tenantID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM conversation_states WHERE .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(conversationColumns).AddRow("conv-1", tenantID.String(), "greeting", []byte(`{}`), 1, now, now))
	mock.ExpectQuery(`UPDATE conversation_states SET state = \$1, state_data = \$2, version = version \+ 1`).
		WithArgs("collecting_order_items", `{"cart":1}`, tenantID, "conv-1").
		WillReturnRows(sqlmock.NewRows(conversationColumns).AddRow("conv-1", tenantID.String(), "collecting_order_items", []byte(`{"cart":1}`), 2, now, now))
	mock.ExpectCommit()

	var seen string
	state, err := repo.Transition(context.Background(), tenantID, "conv-1", func(current *models.ConversationState) (string, map[string]any, error) {
		seen = current.State
		return "collecting_order_items", map[string]any{"cart": 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "greeting", seen)
	assert.Equal(t, "collecting_order_items", state.State)
	assert.Equal(t, 2, state.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationStateRepository_Transition_Rejected(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewConversationStateRepository(db, getTestLogger())
	tenantID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM conversation_states WHERE .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(conversationColumns).AddRow("conv-1", tenantID.String(), "greeting", []byte(`{}`), 1, now, now))
	mock.ExpectRollback()

	rejected := httperror.NewHTTPError(http.StatusConflict, "not allowed")
	_, err := repo.Transition(context.Background(), tenantID, "conv-1", func(current *models.ConversationState) (string, map[string]any, error) {
		return "", nil, rejected
	})
	assert.ErrorIs(t, err, rejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}
