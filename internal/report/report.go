// Package report renders learning session reports as plain text or HTML.
// It is consumed by the sessionview CLI and the web session pages.
package report

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/setsuna-project/setsuna/internal/engine"
)

// Text renders a single session as a plain-text report.
func Text(st engine.Status) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "セッション: %s\n", st.ID)
	fmt.Fprintf(&sb, "テーマ:     %s\n", st.Theme)
	fmt.Fprintf(&sb, "学習タイプ: %s (深さ %d)\n", st.LearningType, st.DepthLevel)
	if len(st.Tags) > 0 {
		fmt.Fprintf(&sb, "タグ:       %s\n", strings.Join(st.Tags, ", "))
	}
	if st.Parent != "" {
		fmt.Fprintf(&sb, "親セッション: %s\n", st.Parent)
	}
	fmt.Fprintf(&sb, "状態:       %s", st.State)
	if st.StopReason != "" {
		fmt.Fprintf(&sb, " (%s)", st.StopReason)
	}
	sb.WriteByte('\n')
	fmt.Fprintf(&sb, "開始:       %s\n", st.StartedAt.Format(time.RFC3339))
	if !st.FinishedAt.IsZero() {
		fmt.Fprintf(&sb, "終了:       %s (所要 %s)\n",
			st.FinishedAt.Format(time.RFC3339),
			st.FinishedAt.Sub(st.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(&sb, "クエリ:     %d\n", st.Queries)
	fmt.Fprintf(&sb, "知識:       %d 件 (エンティティ %d, 関係 %d)\n",
		st.Items, st.Entities, st.Relations)
	fmt.Fprintf(&sb, "コスト:     $%.4f\n", st.Spend)
	return sb.String()
}

// ListText renders a one-line-per-session index.
func ListText(sts []engine.Status) string {
	if len(sts) == 0 {
		return "セッションはまだありません\n"
	}
	var sb strings.Builder
	for _, st := range sts {
		fmt.Fprintf(&sb, "%s  %-12s %4d件  $%.4f  %s\n",
			st.ID, st.State, st.Items, st.Spend, st.Theme)
	}
	return sb.String()
}

var htmlTemplate = template.Must(template.New("session").Parse(`<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="utf-8">
<title>{{.Theme}} - せつな学習レポート</title>
<style>
body { font-family: sans-serif; max-width: 720px; margin: 2em auto; color: #222; }
h1 { font-size: 1.3em; border-bottom: 2px solid #7aa; padding-bottom: .3em; }
table { border-collapse: collapse; width: 100%; }
td, th { text-align: left; padding: .35em .6em; border-bottom: 1px solid #ddd; }
th { width: 10em; color: #577; }
code { background: #f4f4f4; padding: .1em .3em; }
</style>
</head>
<body>
<h1>{{.Theme}}</h1>
<table>
<tr><th>セッションID</th><td><code>{{.ID}}</code></td></tr>
<tr><th>学習タイプ</th><td>{{.LearningType}} (深さ {{.DepthLevel}})</td></tr>
{{if .Tags}}<tr><th>タグ</th><td>{{range .Tags}}{{.}} {{end}}</td></tr>{{end}}
{{if .Parent}}<tr><th>親セッション</th><td><code>{{.Parent}}</code></td></tr>{{end}}
<tr><th>状態</th><td>{{.State}}{{if .StopReason}} ({{.StopReason}}){{end}}</td></tr>
<tr><th>クエリ数</th><td>{{.Queries}}</td></tr>
<tr><th>保存した知識</th><td>{{.Items}} 件 (エンティティ {{.Entities}}, 関係 {{.Relations}})</td></tr>
<tr><th>コスト</th><td>${{printf "%.4f" .Spend}}</td></tr>
</table>
</body>
</html>
`))

var htmlListTemplate = template.Must(template.New("sessions").Parse(`<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="utf-8">
<title>せつな学習セッション一覧</title>
<style>
body { font-family: sans-serif; max-width: 720px; margin: 2em auto; color: #222; }
h1 { font-size: 1.3em; border-bottom: 2px solid #7aa; padding-bottom: .3em; }
table { border-collapse: collapse; width: 100%; }
td, th { text-align: left; padding: .35em .6em; border-bottom: 1px solid #ddd; }
</style>
</head>
<body>
<h1>学習セッション一覧</h1>
{{if .}}
<table>
<tr><th>ID</th><th>テーマ</th><th>状態</th><th>知識</th><th>コスト</th></tr>
{{range .}}<tr>
<td><a href="/sessions/{{.ID}}"><code>{{.ID}}</code></a></td>
<td>{{.Theme}}</td><td>{{.State}}</td><td>{{.Items}}</td>
<td>${{printf "%.4f" .Spend}}</td>
</tr>
{{end}}</table>
{{else}}<p>セッションはまだありません</p>{{end}}
</body>
</html>
`))

// HTML renders a single session as an HTML page.
func HTML(w io.Writer, st engine.Status) error {
	if err := htmlTemplate.Execute(w, st); err != nil {
		return fmt.Errorf("report: render session html: %w", err)
	}
	return nil
}

// HTMLList renders the session index as an HTML page.
func HTMLList(w io.Writer, sts []engine.Status) error {
	if err := htmlListTemplate.Execute(w, sts); err != nil {
		return fmt.Errorf("report: render session list html: %w", err)
	}
	return nil
}
