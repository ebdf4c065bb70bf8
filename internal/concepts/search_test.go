package concepts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/conceptlab/conceptci/internal/chat"
	"github.com/conceptlab/conceptci/internal/chat/chatmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func completion(t *testing.T, content string) *chat.Response {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	require.NoError(t, err)
	return &chat.Response{StatusCode: 200, Body: body}
}

func TestBuildRequest_Defaults(t *testing.T) {
	s := NewSearcher(nil, SearchOptions{}, nil)
	req := s.BuildRequest("低空经济")

	assert.Equal(t, DefaultSearchModel, req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, chat.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, chat.RoleUser, req.Messages[1].Role)
	assert.Contains(t, req.Messages[1].Content, "【低空经济】")
	assert.Contains(t, req.Messages[1].Content, "返回10只左右")
	assert.False(t, req.Stream)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.1, *req.Temperature, 1e-12)
	require.NotNil(t, req.TopP)
	assert.InDelta(t, 0.8, *req.TopP, 1e-12)
	require.NotNil(t, req.Thinking)
	assert.Equal(t, "disabled", req.Thinking.Type)
	assert.Equal(t, chat.JSONObject, req.ResponseFormat)

	require.Len(t, req.Tools, 1)
	assert.Equal(t, chat.ToolTypeWebSearch, req.Tools[0].Type)
	require.NotNil(t, req.Tools[0].WebSearch)
	assert.True(t, req.Tools[0].WebSearch.Enable)
	assert.True(t, req.Tools[0].WebSearch.SearchResult)
}

func TestBuildRequest_Overrides(t *testing.T) {
	tools := []chat.Tool{chat.WebSearchTool(chat.WebSearch{SearchEngine: "search_pro", Count: 5})}
	s := NewSearcher(nil, SearchOptions{Model: "glm-4-air", Temperature: 0.3, TopP: 0.5, MaxStocks: 20, Tools: tools}, nil)
	req := s.BuildRequest("算力")

	assert.Equal(t, "glm-4-air", req.Model)
	assert.Contains(t, req.Messages[1].Content, "返回20只左右")
	assert.InDelta(t, 0.3, *req.Temperature, 1e-12)
	assert.InDelta(t, 0.5, *req.TopP, 1e-12)
	assert.Equal(t, tools, req.Tools)
}

func TestSearch(t *testing.T) {
	ctrl := gomock.NewController(t)
	completer := chatmock.NewMockCompleter(ctrl)

	completer.EXPECT().
		Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *chat.Request) (*chat.Response, error) {
			assert.Contains(t, req.Messages[1].Content, "【机器人】")
			return completion(t, "```json\n"+
				`{"stocks":[{"code":"002472","name":"双环传动","market":"SZ","reason":"减速器"},{"code":"600275","name":"ST武昌鱼"}]}`+
				"\n```"), nil
		})

	s := NewSearcher(completer, SearchOptions{}, nil)
	got, err := s.Search(context.Background(), "  机器人 ")
	require.NoError(t, err)
	assert.Equal(t, []Stock{{Code: "002472", Name: "双环传动", Market: "SZ", Reason: "减速器"}}, got)
}

func TestSearch_EmptyName(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := NewSearcher(chatmock.NewMockCompleter(ctrl), SearchOptions{}, nil)

	_, err := s.Search(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestSearch_Errors(t *testing.T) {
	statusErr := &chat.StatusError{StatusCode: 401, Body: []byte(`{"error":{"message":"bad key"}}`)}

	tests := []struct {
		name    string
		resp    *chat.Response
		err     error
		wantErr error
	}{
		{"transport failure", nil, statusErr, statusErr},
		{"no content", &chat.Response{StatusCode: 200, Body: []byte(`{"choices":[]}`)}, nil, chat.ErrNoContent},
		{"prose answer", completion(t, "没有找到相关公司"), nil, ErrNoStocks},
		{"all filtered", completion(t, `{"stocks":[{"code":"600275","name":"ST武昌鱼"}]}`), nil, ErrNoStocks},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			completer := chatmock.NewMockCompleter(ctrl)
			completer.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(tt.resp, tt.err).Times(1)

			s := NewSearcher(completer, SearchOptions{}, nil)
			_, err := s.Search(context.Background(), "光伏")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), `searching "光伏"`)
		})
	}
}

func TestSearch_StatusErrorUnwraps(t *testing.T) {
	ctrl := gomock.NewController(t)
	completer := chatmock.NewMockCompleter(ctrl)
	completer.EXPECT().Complete(gomock.Any(), gomock.Any()).
		Return(&chat.Response{StatusCode: 500}, &chat.StatusError{StatusCode: 500, Body: []byte("boom")})

	s := NewSearcher(completer, SearchOptions{}, nil)
	_, err := s.Search(context.Background(), "光伏")

	var se *chat.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 500, se.StatusCode)
}
