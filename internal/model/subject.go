// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Subject はユーザーが追跡する時間割の対象（グループ・教員・教室・カスタム）を表す。
type Subject struct {
	ID             int64
	Name           string
	ShortName      string
	APIID          string // 大学APIの識別子。カスタム対象の場合は空。
	Type           SubjectType
	IsDefault      bool
	LastTimeUpdate time.Time
}

// SubjectType は追跡対象の種別を表す。
type SubjectType string

const (
	// SubjectTypeGroup は学生グループ。
	SubjectTypeGroup SubjectType = "group"
	// SubjectTypePerson は教員。
	SubjectTypePerson SubjectType = "person"
	// SubjectTypeRoom は教室。
	SubjectTypeRoom SubjectType = "room"
	// SubjectTypeCustom はユーザーが手動で作成した対象。大学APIから更新されない。
	SubjectTypeCustom SubjectType = "custom"
)

// ValidSubjectType は種別が定義済みのいずれかであるかを検証する。
func ValidSubjectType(t SubjectType) bool {
	switch t {
	case SubjectTypeGroup, SubjectTypePerson, SubjectTypeRoom, SubjectTypeCustom:
		return true
	}
	return false
}

// DeriveShortName はフルネームから表示用の短縮名を導出する。
// 教員の場合のみ「姓 名 父称」の3要素名を「姓 N.P.」形式に短縮する。
// 3要素でない教員名、およびグループ・教室はフルネームのまま返す。
func DeriveShortName(fullName string, subjectType SubjectType) string {
	if subjectType != SubjectTypePerson {
		return fullName
	}

	parts := strings.Fields(fullName)
	if len(parts) != 3 {
		return fullName
	}

	surname := parts[0]
	firstInitial := firstRune(parts[1])
	patronymicInitial := firstRune(parts[2])
	if firstInitial == "" || patronymicInitial == "" {
		return fullName
	}

	return surname + " " + firstInitial + "." + patronymicInitial + "."
}

// firstRune は文字列の先頭1文字（rune単位）を返す。
func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
