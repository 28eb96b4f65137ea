// Package export 生成人工复核 CSV 和宣传部门的 Excel 模板文件。
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/LJTian/MediaTrack/internal/storage"
)

// Item 是模板导出的一行素材
type Item struct {
	Title  string `json:"title"`
	Source string `json:"source"`
	URL    string `json:"url"`
}

// WriteReviewCSV 落盘复核结果，返回文件名。
// 前置 UTF-8 BOM，Excel 直接打开中文不乱码。
func WriteReviewCSV(dir, runID string, items []storage.ReviewItem) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("创建导出目录失败: %w", err)
	}
	name := "review_" + runID + ".csv"
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("创建复核文件失败: %w", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return "", err
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"title", "url", "source", "date", "predicted_label", "human_label"}); err != nil {
		return "", err
	}
	for _, it := range items {
		if it.URL == "" {
			continue
		}
		row := []string{
			it.Title, it.URL, it.Source, it.Date,
			strconv.Itoa(it.PredictedLabel), strconv.Itoa(it.HumanLabel),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("写复核 CSV 失败: %w", err)
	}
	return name, nil
}

var templateHeaders = []string{"名称", "序号", "新闻标题", "报道媒体", "刊登平台", "媒体链接", "备注"}

// WriteTemplateXLSX 生成宣传模板：
// A 名称 / B 序号 / C 新闻标题 / D 报道媒体 / E 刊登平台（留白待补）/ F 媒体链接 / G 备注
func WriteTemplateXLSX(dir, project string, items []Item) (string, error) {
	if project == "" {
		project = "项目"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("创建导出目录失败: %w", err)
	}
	name := fmt.Sprintf("宣传模板_%s_%d.xlsx", project, time.Now().Unix())

	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", err
	}
	for i, h := range templateHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return "", err
		}
		_ = f.SetCellStyle(sheet, cell, cell, boldStyle)
	}
	if err := f.SetColWidth(sheet, "A", "G", 22); err != nil {
		return "", err
	}

	for i, it := range items {
		row := i + 2
		values := []any{project, i + 1, it.Title, it.Source, "", it.URL, ""}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return "", err
			}
		}
	}

	if err := f.SaveAs(filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("保存模板失败: %w", err)
	}
	return name, nil
}
