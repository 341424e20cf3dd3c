package router

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// callDescriptor 解密后的调用描述符
type callDescriptor struct {
	fileID   string
	function string
	args     []any
}

// parseDescriptor 解析描述符明文。
// 静态形式恰好 4 段：文件标识-函数名-类型表-值表；
// 动态形式恰好 2 段，实参在调用点外带；其余段数一律拒绝。
// 外带实参时编码参数段整体忽略，按位置使用外带实参。
func parseDescriptor(plain string, dynamicArgs []any) (*callDescriptor, error) {
	fields := strings.Split(plain, "-")

	if len(dynamicArgs) > 0 {
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: %q", ErrBadDescriptor, plain)
		}
		return &callDescriptor{fileID: fields[0], function: fields[1], args: dynamicArgs}, nil
	}

	switch len(fields) {
	case 2:
		return &callDescriptor{fileID: fields[0], function: fields[1], args: []any{}}, nil
	case 4:
		return &callDescriptor{
			fileID:   fields[0],
			function: fields[1],
			args:     parseTypedArgs(fields[2], fields[3]),
		}, nil
	default:
		return nil, fmt.Errorf("%w: 字段数为 %d: %q", ErrBadDescriptor, len(fields), plain)
	}
}

// parseTypedArgs 按声明类型逐个转换编码实参。
// 类型表或值表为 null 表示零实参。
func parseTypedArgs(typeList, valueList string) []any {
	if typeList == "null" || valueList == "null" {
		return []any{}
	}
	types := strings.Split(typeList, ",")
	values := strings.Split(valueList, ",")

	args := make([]any, 0, len(values))
	for i, v := range values {
		t := ""
		if i < len(types) {
			t = types[i]
		}
		args = append(args, convertArg(t, v))
	}
	return args
}

// convertArg 单个实参的类型转换。解析失败按空值处理并告警，绝不上抛。
func convertArg(typeName, value string) any {
	switch typeName {
	case "string":
		return value
	case "number":
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			log.Printf("路由器: 警告: 数值实参 %q 解析失败，按空值处理", value)
			return nil
		}
		return n
	case "boolean":
		return strings.EqualFold(value, "true")
	case "object":
		var obj any
		if err := json.Unmarshal([]byte(value), &obj); err != nil {
			log.Printf("路由器: 警告: JSON 实参 %q 解析失败，按空值处理", value)
			return nil
		}
		return obj
	case "null":
		return nil
	default:
		log.Printf("路由器: 警告: 未知实参类型 %q，按字符串处理", typeName)
		return value
	}
}
