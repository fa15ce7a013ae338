package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"finledger/internal/config"
	"finledger/internal/infrastructure/database"
	"finledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				TransactionEvents: "test.transaction.events",
				ApprovalEvents:    "test.approval.events",
			},
		},
		Business: config.BusinessConfig{ApprovalLockSeconds: 30},
	}

	return SetupRouter(db, nil, cfg)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *envelope {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAccountEndpoints(t *testing.T) {
	router := newTestRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/account/create", gin.H{
		"code": "1001",
		"name": "库存现金",
		"type": "asset",
	}, nil)
	require.Equal(t, response.CodeSuccess, resp.Code)

	var account struct {
		ID   int64  `json:"id"`
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &account))
	require.Equal(t, "1001", account.Code)

	// 编码唯一性冲突映射为业务错误码
	resp = doJSON(t, router, http.MethodPost, "/api/v1/account/create", gin.H{
		"code": "1001",
		"name": "重复编码",
		"type": "asset",
	}, nil)
	require.Equal(t, response.CodeConflict, resp.Code)

	// 按编码查询
	resp = doJSON(t, router, http.MethodGet, "/api/v1/account/detail?code=1001", nil, nil)
	require.Equal(t, response.CodeSuccess, resp.Code)

	resp = doJSON(t, router, http.MethodGet, "/api/v1/account/detail?code=9999", nil, nil)
	require.Equal(t, response.CodeNotFound, resp.Code)
}

func TestCreateTransactionEndpoint(t *testing.T) {
	router := newTestRouter(t)
	user := map[string]string{"X-User-ID": "1"}

	resp := doJSON(t, router, http.MethodPost, "/api/v1/account/create", gin.H{
		"code": "1001", "name": "库存现金", "type": "asset",
	}, nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var cash struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &cash))

	resp = doJSON(t, router, http.MethodPost, "/api/v1/account/create", gin.H{
		"code": "4001", "name": "主营业务收入", "type": "revenue",
	}, nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var sales struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &sales))

	body := gin.H{
		"type":             "income",
		"transaction_date": "2024-05-10",
		"description":      "现销收入",
		"entries": []gin.H{
			{"account_id": cash.ID, "type": "debit", "amount": "100.00"},
			{"account_id": sales.ID, "type": "credit", "amount": "100.00"},
		},
	}

	// 缺少调用者身份直接拒绝
	resp = doJSON(t, router, http.MethodPost, "/api/v1/transaction/create", body, nil)
	require.Equal(t, response.CodeParamError, resp.Code)

	resp = doJSON(t, router, http.MethodPost, "/api/v1/transaction/create", body, user)
	require.Equal(t, response.CodeSuccess, resp.Code)

	var txn struct {
		ID            int64  `json:"id"`
		TransactionNo string `json:"transaction_no"`
		Status        string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &txn))
	require.Equal(t, "draft", txn.Status)
	require.NotEmpty(t, txn.TransactionNo)

	// 借贷不平衡映射为校验错误码
	resp = doJSON(t, router, http.MethodPost, "/api/v1/transaction/create", gin.H{
		"type":             "income",
		"transaction_date": "2024-05-10",
		"entries": []gin.H{
			{"account_id": cash.ID, "type": "debit", "amount": "100.00"},
			{"account_id": sales.ID, "type": "credit", "amount": "50.00"},
		},
	}, user)
	require.Equal(t, response.CodeValidationError, resp.Code)

	// 按交易号查询详情
	resp = doJSON(t, router, http.MethodGet, "/api/v1/transaction/detail?no="+txn.TransactionNo, nil, nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
}

func TestApprovalEndpoints(t *testing.T) {
	router := newTestRouter(t)
	creator := map[string]string{"X-User-ID": "1"}
	approver := map[string]string{"X-User-ID": "101"}

	resp := doJSON(t, router, http.MethodPost, "/api/v1/account/create", gin.H{
		"code": "1001", "name": "库存现金", "type": "asset",
	}, nil)
	var cash struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &cash))

	resp = doJSON(t, router, http.MethodPost, "/api/v1/account/create", gin.H{
		"code": "4001", "name": "主营业务收入", "type": "revenue",
	}, nil)
	var sales struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &sales))

	resp = doJSON(t, router, http.MethodPost, "/api/v1/transaction/create", gin.H{
		"type":             "expense",
		"transaction_date": "2024-05-10",
		"entries": []gin.H{
			{"account_id": cash.ID, "type": "debit", "amount": "200.00"},
			{"account_id": sales.ID, "type": "credit", "amount": "200.00"},
		},
	}, creator)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var txn struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &txn))

	resp = doJSON(t, router, http.MethodPost, "/api/v1/transaction/status", gin.H{
		"id": txn.ID, "status": "pending_approval",
	}, creator)
	require.Equal(t, response.CodeSuccess, resp.Code)

	resp = doJSON(t, router, http.MethodPost, "/api/v1/approval/create", gin.H{
		"transaction_id": txn.ID,
		"approver_ids":   []int64{101},
	}, creator)
	require.Equal(t, response.CodeSuccess, resp.Code)

	var approval struct {
		ID    int64 `json:"id"`
		Steps []struct {
			ID int64 `json:"id"`
		} `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &approval))
	require.Len(t, approval.Steps, 1)

	// 审批人待办列表
	resp = doJSON(t, router, http.MethodGet, "/api/v1/approval/pending", nil, approver)
	require.Equal(t, response.CodeSuccess, resp.Code)

	// 非指派审批人处理被拒绝
	resp = doJSON(t, router, http.MethodPost, "/api/v1/approval/resolve", gin.H{
		"approval_id": approval.ID,
		"step_id":     approval.Steps[0].ID,
		"approved":    true,
	}, map[string]string{"X-User-ID": "999"})
	require.Equal(t, response.CodeForbidden, resp.Code)

	// 指派审批人通过，单步审批直接整单通过并级联交易
	resp = doJSON(t, router, http.MethodPost, "/api/v1/approval/resolve", gin.H{
		"approval_id": approval.ID,
		"step_id":     approval.Steps[0].ID,
		"approved":    true,
		"comment":     "同意",
	}, approver)
	require.Equal(t, response.CodeSuccess, resp.Code)

	var resolved struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &resolved))
	require.Equal(t, "approved", resolved.Status)

	resp = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/transaction/detail?id=%d", txn.ID), nil, nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var detail struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &detail))
	require.Equal(t, "approved", detail.Status)
}
