// Package lifecycle implements the project status state machine: the
// ordered sequence of statuses a project advances through, which tabs are
// reachable at each status, and the progress bar text shown for each.
package lifecycle

import (
	"fmt"

	"github.com/MrWong99/kinoforge/pkg/types"
)

// Tab identifies a view in the builder UI.
type Tab string

const (
	TabInput      Tab = "input"
	TabStyles     Tab = "styles"
	TabSceneSplit Tab = "sceneSplit"
	TabBuilder    Tab = "builder"
	TabExport     Tab = "export"
	TabVideoBuild Tab = "videoBuild"
)

// orderedStatuses is the monotonic progression a project advances through.
// Index position doubles as its rank for comparisons. failed is deliberately
// excluded — it sits off to the side and is never compared by rank.
var orderedStatuses = []types.ProjectStatus{
	types.StatusCreated,
	types.StatusUploaded,
	types.StatusTranscribing,
	types.StatusTranscribed,
	types.StatusParsing,
	types.StatusParsed,
	types.StatusFormatting,
	types.StatusFormatted,
	types.StatusGeneratingImage,
	types.StatusCompleted,
}

var statusRank = func() map[types.ProjectStatus]int {
	m := make(map[types.ProjectStatus]int, len(orderedStatuses))
	for i, s := range orderedStatuses {
		m[s] = i
	}
	return m
}()

// tabMinStatus maps a tab to the minimum project status required to reach
// it. Tabs absent from this map (input, styles) are always reachable.
var tabMinStatus = map[Tab]types.ProjectStatus{
	TabSceneSplit: types.StatusUploaded,
	TabBuilder:    types.StatusFormatted,
	TabExport:     types.StatusCompleted,
	TabVideoBuild: types.StatusCompleted,
}

// StatusRank returns the position of status in the ordered progression, or
// -1 if status is not part of it (e.g. "failed"). Other packages that need
// "is this status at-or-past that one" comparisons (sceneformat's
// prerequisite-step skipping) use this instead of re-deriving their own
// ordering.
func StatusRank(status types.ProjectStatus) int {
	rank, ok := statusRank[status]
	if !ok {
		return -1
	}
	return rank
}

// CanAccessTab reports whether a project at the given status may navigate
// to tab.
func CanAccessTab(status types.ProjectStatus, tab Tab) bool {
	min, gated := tabMinStatus[tab]
	if !gated {
		return true
	}
	if status == types.StatusFailed {
		return false
	}
	return statusRank[status] >= statusRank[min]
}

// AccessDeniedMessage returns the warning toast text shown when navigation
// to tab is blocked at status.
func AccessDeniedMessage(status types.ProjectStatus, tab Tab) string {
	min := tabMinStatus[tab]
	return fmt.Sprintf("this tab requires status %q or later (project is currently %q)", min, status)
}

// Progress is the computed state of the progress bar for a given status.
type Progress struct {
	Percent   int
	StepIndex int
	Message   string
	NextTab   Tab
	HasNext   bool
}

// stepMessages gives the base progress message for each status. The
// "formatted" entry is refined further by ReadinessSummary in
// UpdateProgressBar.
var stepMessages = map[types.ProjectStatus]string{
	types.StatusCreated:         "プロジェクトを作成しました",
	types.StatusUploaded:        "アップロード完了。台本を解析できます",
	types.StatusTranscribing:    "音声を文字起こし中です",
	types.StatusTranscribed:     "文字起こし完了",
	types.StatusParsing:         "台本を解析中です",
	types.StatusParsed:          "解析完了",
	types.StatusFormatting:      "シーンを整形中です",
	types.StatusFormatted:       "整形完了",
	types.StatusGeneratingImage: "画像を生成中です",
	types.StatusCompleted:       "動画ビルドの準備ができました",
	types.StatusFailed:          "処理に失敗しました",
}

var stepNextTab = map[types.ProjectStatus]Tab{
	types.StatusUploaded:  TabSceneSplit,
	types.StatusFormatted: TabBuilder,
	types.StatusCompleted: TabVideoBuild,
}

// ReadinessSummary is the preflight-derived adopted-asset count used to
// refine the "formatted" status message.
type ReadinessSummary struct {
	ReadyCount int
	TotalCount int
}

// UpdateProgressBar computes the progress bar state for status. summary is
// only consulted when status is "formatted"; pass the zero value otherwise.
func UpdateProgressBar(status types.ProjectStatus, summary ReadinessSummary) Progress {
	rank, known := statusRank[status]
	total := len(orderedStatuses) - 1

	p := Progress{Message: stepMessages[status]}
	if next, ok := stepNextTab[status]; ok {
		p.NextTab = next
		p.HasNext = true
	}

	if status == types.StatusFailed {
		p.Percent = 0
		p.StepIndex = -1
		return p
	}
	if !known {
		return p
	}

	p.StepIndex = rank
	if total > 0 {
		p.Percent = rank * 100 / total
	}

	if status == types.StatusFormatted && summary.TotalCount > 0 {
		if summary.ReadyCount >= summary.TotalCount {
			p.Message = "すべてのシーンでアセットが確定しました。動画ビルドに進めます"
		} else {
			p.Message = fmt.Sprintf("%d / %d シーンが未確定です。ビルダーで確認してください", summary.TotalCount-summary.ReadyCount, summary.TotalCount)
		}
	}

	return p
}
