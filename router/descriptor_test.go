package router

import (
	"errors"
	"reflect"
	"testing"
)

// TestParseStaticDescriptorForms 静态描述符只接受 2 段与 4 段形式
func TestParseStaticDescriptorForms(t *testing.T) {
	cases := []struct {
		name     string
		plain    string
		fileID   string
		function string
		args     []any
		wantErr  bool
	}{
		{"带类型实参", "file3-funct1-number,string-7,hello", "file3", "funct1", []any{float64(7), "hello"}, false},
		{"null 占位零实参", "file1-funct1-null-null", "file1", "funct1", []any{}, false},
		{"两段动态形式", "file2-doStuff", "file2", "doStuff", []any{}, false},
		{"三段拒绝", "a-b-c", "", "", nil, true},
		{"五段拒绝", "a-b-c-d-e", "", "", nil, true},
		{"单段拒绝", "solo", "", "", nil, true},
	}
	for _, c := range cases {
		desc, err := parseDescriptor(c.plain, nil)
		if c.wantErr {
			if err == nil {
				t.Errorf("%s: 应报错", c.name)
			} else if !errors.Is(err, ErrBadDescriptor) {
				t.Errorf("%s: 错误应为 ErrBadDescriptor, 实得 %v", c.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: 不应报错: %v", c.name, err)
			continue
		}
		if desc.fileID != c.fileID || desc.function != c.function {
			t.Errorf("%s: 目标 = %s/%s, 应为 %s/%s", c.name, desc.fileID, desc.function, c.fileID, c.function)
		}
		if !reflect.DeepEqual(desc.args, c.args) {
			t.Errorf("%s: 实参 = %v, 应为 %v", c.name, desc.args, c.args)
		}
	}
}

// TestDynamicArgsOverrideEncoded 外带实参整体替换编码参数段
func TestDynamicArgsOverrideEncoded(t *testing.T) {
	dynamic := []any{42, "外带"}
	desc, err := parseDescriptor("file3-funct1-number-7", dynamic)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if !reflect.DeepEqual(desc.args, dynamic) {
		t.Errorf("实参 = %v, 外带实参应整体生效", desc.args)
	}

	// 两段形式同样接受外带实参
	desc, err = parseDescriptor("file2-doStuff", dynamic)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if !reflect.DeepEqual(desc.args, dynamic) {
		t.Errorf("实参 = %v, 外带实参应整体生效", desc.args)
	}

	// 连函数名都没有的明文救不回来
	if _, err := parseDescriptor("solo", dynamic); !errors.Is(err, ErrBadDescriptor) {
		t.Errorf("缺少函数段时应报 ErrBadDescriptor, 实得 %v", err)
	}
}

// TestConvertArgTypes 单实参类型转换，解析失败按空值处理
func TestConvertArgTypes(t *testing.T) {
	cases := []struct {
		name     string
		typeName string
		value    string
		want     any
	}{
		{"字符串", "string", "hello", "hello"},
		{"数值", "number", "3.5", 3.5},
		{"整数也走浮点", "number", "7", float64(7)},
		{"坏数值归空", "number", "七", nil},
		{"布尔忽略大小写", "boolean", "TRUE", true},
		{"布尔其余取假", "boolean", "yes", false},
		{"对象走 JSON", "object", `{"a":1}`, map[string]any{"a": float64(1)}},
		{"坏 JSON 归空", "object", "{broken", nil},
		{"null 类型", "null", "whatever", nil},
		{"未知类型按字符串", "date", "2024-01-01", "2024-01-01"},
	}
	for _, c := range cases {
		got := convertArg(c.typeName, c.value)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("%s: convertArg(%q, %q) = %v, 应为 %v", c.name, c.typeName, c.value, got, c.want)
		}
	}
}

// TestTypedArgsNullTable 类型表或值表任一为 null 都表示零实参
func TestTypedArgsNullTable(t *testing.T) {
	if got := parseTypedArgs("null", "7"); len(got) != 0 {
		t.Errorf("类型表为 null 时实参 = %v, 应为空", got)
	}
	if got := parseTypedArgs("number", "null"); len(got) != 0 {
		t.Errorf("值表为 null 时实参 = %v, 应为空", got)
	}
}

// TestTypedArgsTypeListShorterThanValues 类型表偏短时多余值按未知类型处理
func TestTypedArgsTypeListShorterThanValues(t *testing.T) {
	got := parseTypedArgs("number", "7,tail")
	want := []any{float64(7), "tail"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("实参 = %v, 应为 %v", got, want)
	}
}
