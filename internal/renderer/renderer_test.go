package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgerrors "github.com/conneroisu/pagelet/internal/errors"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		data   any
		want   string
	}{
		{
			name:   "variable",
			markup: "<h1>{{name}}</h1>",
			data:   map[string]interface{}{"name": "Ada"},
			want:   "<h1>Ada</h1>",
		},
		{
			name:   "escaping",
			markup: "<p>{{html}}</p><div>{{{html}}}</div>",
			data:   map[string]interface{}{"html": "<b>x</b>"},
			want:   "<p>&lt;b&gt;x&lt;/b&gt;</p><div><b>x</b></div>",
		},
		{
			name:   "each and if",
			markup: "<ul>{{#each items}}<li>{{this}}</li>{{/each}}</ul>{{#if empty}}none{{/if}}",
			data:   map[string]interface{}{"items": []interface{}{"a", "b"}, "empty": false},
			want:   "<ul><li>a</li><li>b</li></ul>",
		},
		{
			name:   "missing key renders empty",
			markup: "<p>{{missing}}</p>",
			data:   map[string]interface{}{},
			want:   "<p></p>",
		},
		{
			name:   "nested",
			markup: "{{user.name}} ({{user.age}})",
			data:   map[string]interface{}{"user": map[string]interface{}{"name": "Ada", "age": int64(36)}},
			want:   "Ada (36)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			render, err := Compile(tt.markup)
			require.NoError(t, err)

			got, err := render(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileRenderIsRepeatable(t *testing.T) {
	render, err := Compile("<h1>{{name}}</h1>")
	require.NoError(t, err)

	for _, name := range []string{"Ada", "Grace", "Ada"} {
		got, err := render(map[string]interface{}{"name": name})
		require.NoError(t, err)
		assert.Equal(t, "<h1>"+name+"</h1>", got)
	}
}

func TestCompileSyntaxError(t *testing.T) {
	_, err := Compile("<p>{{#if ok}}unclosed</p>")
	require.Error(t, err)
	assert.True(t, pgerrors.IsType(err, pgerrors.ErrorTypeParse))
}

func TestStatic(t *testing.T) {
	markup := "<p>{{not a template}}</p>"
	got, err := Static(markup)(map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, markup, got)
}
