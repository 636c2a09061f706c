package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimine/bunshin/internal/auth"
	"github.com/aimine/bunshin/internal/store"
)

func TestRegisterUsersCreatesCompanyUsersAndAdminBot(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	svc := NewProvisionService(st, "default1234")

	results := svc.RegisterUsers(ctx, []UserUpload{
		{CompanyID: "test-company", CompanyName: "テストカンパニー", Email: "admin@example.com", Name: "佐藤", Role: "admin"},
		{CompanyID: "test-company", CompanyName: "テストカンパニー", Email: "employee@example.com", Name: "田中", Role: "employee"},
	})
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, "success", res.Status, "email %s", res.Email)
	}

	company, err := st.GetCompany(ctx, "test-company")
	require.NoError(t, err)
	assert.Equal(t, "テストカンパニー", company.Name)

	admin, err := st.GetUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdmin, admin.Role)
	assert.Equal(t, "佐藤", admin.BotID, "admins get their default bot assigned")
	assert.True(t, admin.MustResetPassword)
	assert.True(t, auth.CheckPasswordHash("default1234", admin.PasswordHash))

	employee, err := st.GetUserByEmail(ctx, "employee@example.com")
	require.NoError(t, err)
	assert.Equal(t, store.RoleEmployee, employee.Role)
	assert.Empty(t, employee.BotID)

	bot, err := st.GetBot(ctx, "test-company", "佐藤")
	require.NoError(t, err)
	assert.Equal(t, "会社「テストカンパニー」の管理職「佐藤」です。", bot.Prompt)

	_, err = st.GetBot(ctx, "test-company", "田中")
	assert.True(t, store.IsNotFound(err), "employees get no bot")
}

func TestRegisterUsersPartialFailureContinues(t *testing.T) {
	st := newTestStore(t)
	svc := NewProvisionService(st, "default1234")

	results := svc.RegisterUsers(context.Background(), []UserUpload{
		{CompanyID: "c1", CompanyName: "C1", Email: "", Name: "匿名", Role: "employee"},
		{CompanyID: "c1", CompanyName: "C1", Email: "bad-role@example.com", Name: "X", Role: "overlord"},
		{CompanyID: "c1", CompanyName: "C1", Email: "ok@example.com", Name: "田中", Role: "employee"},
	})
	require.Len(t, results, 3)
	assert.Equal(t, "failed", results[0].Status)
	assert.Equal(t, "missing-fields", results[0].Reason)
	assert.Equal(t, "failed", results[1].Status)
	assert.Equal(t, "success", results[2].Status)
}

func TestRegisterUsersIdempotentForExistingAccounts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	svc := NewProvisionService(st, "default1234")

	row := UserUpload{CompanyID: "c1", CompanyName: "C1", Email: "admin@example.com", Name: "佐藤", Role: "admin"}
	first := svc.RegisterUsers(ctx, []UserUpload{row})
	require.Equal(t, "success", first[0].Status)

	again := svc.RegisterUsers(ctx, []UserUpload{row})
	assert.Equal(t, "success", again[0].Status, "re-importing an existing account is not an error")
}
