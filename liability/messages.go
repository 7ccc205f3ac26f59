package liability

import (
	"fmt"
	"strings"
)

const (
	msgCovered          = "案件在保险保障范围内"
	msgNotCovered       = "案件可能不在保障范围内"
	msgMissingDiagnosis = "缺少诊断信息，无法确认是否在保障范围内"
	msgNoIssues         = "未发现明显风险或免责情况"
)

func msgWaitingPeriod(elapsed, required int) string {
	return fmt.Sprintf("出险时间距保单生效仅%d天，未满%d天等待期", elapsed, required)
}

func msgExclusions(labels []string) string {
	return fmt.Sprintf("发现%d个免责因素: %s", len(labels), strings.Join(labels, ", "))
}

func msgRisks(names []string) string {
	return fmt.Sprintf("检测到%d个风险点: %s", len(names), strings.Join(names, ", "))
}
