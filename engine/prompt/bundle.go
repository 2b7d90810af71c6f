// Package prompt assembles bounded, deterministic translation prompts.
//
// A Bundle is a plain value: the section to translate plus the examples and
// terms chosen for it. Render is a pure function of the Bundle, and Size
// counts Unicode code points of the rendered prompt, so identical inputs
// always yield byte-identical prompts of a known size.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/WessleyAI/patentrag/engine/domain"
)

// Input is the section being translated.
type Input struct {
	Text   string
	Kind   domain.SectionKind
	Domain domain.Domain
}

// Bundle is the content of one prompt.
type Bundle struct {
	Input    Input
	Examples []domain.TranslationExample
	Terms    []domain.TerminologyEntry
	// Size is the rune count of Render().
	Size int
}

// Size is the prompt size metric: Unicode code points.
func Size(s string) int { return utf8.RuneCountInString(s) }

const preamble = `你是專業的日文轉繁體中文專利翻譯員，專精半導體與機械領域。

翻譯要求：
1. 使用台灣專利局慣用術語
2. 保持專利文件的法律精確性
3. 維持原文的句子結構和邏輯關係
4. 專利請求項（claim）必須保持編號和從屬關係
5. 技術術語必須一致且準確，術語對照表中的譯法必須原樣使用
6. 僅以 JSON 物件回覆，格式為 {"translation": "<繁體中文翻譯>"}，不得加入其他說明
`

var kindLabels = map[domain.SectionKind]string{
	domain.SectionTitle:       "發明名稱",
	domain.SectionAbstract:    "摘要",
	domain.SectionClaims:      "申請專利範圍",
	domain.SectionDescription: "說明書",
}

var domainLabels = map[domain.Domain]string{
	domain.DomainSemiconductor: "半導體",
	domain.DomainMechanical:    "機械",
	domain.DomainGeneral:       "一般",
}

// KindLabel is the Traditional Chinese heading for a section kind, or the
// kind itself when it has none.
func KindLabel(k domain.SectionKind) string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return string(k)
}

// Render builds the prompt text.
func (b Bundle) Render() string {
	var sb strings.Builder
	sb.WriteString(preamble)

	if len(b.Terms) > 0 {
		sb.WriteString("\n重要術語對照表：\n")
		for _, t := range b.Terms {
			fmt.Fprintf(&sb, "  • %s → %s\n", t.Source, t.Target)
		}
	}

	if len(b.Examples) > 0 {
		sb.WriteString("\n參考以下過去的翻譯範例（學習風格和用語）：\n")
		for i, e := range b.Examples {
			fmt.Fprintf(&sb, "\n範例 %d:\n日文：%s\n中文：%s\n", i+1, e.Source, e.Target)
		}
	}

	sb.WriteString("\n---\n\n請將以下日文專利內容翻譯成繁體中文：\n\n")
	fmt.Fprintf(&sb, "段落類型：%s\n", KindLabel(b.Input.Kind))
	if d, ok := domainLabels[b.Input.Domain]; ok {
		fmt.Fprintf(&sb, "技術領域：%s\n", d)
	}
	sb.WriteString("\n日文原文：\n")
	sb.WriteString(b.Input.Text)
	sb.WriteString("\n\n繁體中文翻譯（JSON）：")
	return sb.String()
}
