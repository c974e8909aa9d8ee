// Package protowriter renders schema files as .proto source.
//
// Type references are written fully-qualified with a leading dot, so the output parses back to the same schema
// regardless of package or nesting. Declarations are grouped by kind in the order the schema holds them.
package protowriter

import (
	"io"
	"strings"

	"github.com/alecthomas/errors"

	"github.com/alecthomas/protoprune/internal/codewriter"
	"github.com/alecthomas/protoprune/schema"
)

// Write file as .proto source to out.
func Write(out io.Writer, file *schema.File) error {
	_, err := io.WriteString(out, String(file))
	if err != nil {
		return errors.Errorf("failed to write %s: %w", file.Path, err)
	}
	return nil
}

// String renders file as .proto source.
func String(file *schema.File) string {
	w := codewriter.New()
	if file.Syntax != "" {
		w.L("syntax = %q;", file.Syntax)
	}
	if file.Package != "" {
		blank(w)
		w.L("package %s;", file.Package)
	}
	if len(file.Imports) > 0 {
		blank(w)
		for _, imp := range file.Imports {
			if imp.Modifier != "" {
				w.L("import %s %q;", imp.Modifier, imp.Path)
			} else {
				w.L("import %q;", imp.Path)
			}
		}
	}
	if len(file.Options) > 0 {
		blank(w)
		writeOptionStatements(w, file.Options)
	}
	for _, typ := range file.Types {
		blank(w)
		writeType(w, typ)
	}
	for _, service := range file.Services {
		blank(w)
		writeService(w, service)
	}
	for _, extend := range file.Extends {
		blank(w)
		writeExtend(w, extend)
	}
	return w.String()
}

// blank separates top-level sections, without leading the file with an empty line.
func blank(w *codewriter.Writer) {
	if len(w.Bytes()) > 0 {
		w.L("")
	}
}

func writeType(w *codewriter.Writer, typ schema.Type) {
	switch typ := typ.(type) {
	case *schema.Message:
		writeMessage(w, typ)
	case *schema.Enum:
		writeEnum(w, typ)
	default:
		panic(errors.Errorf("unexpected type %T", typ))
	}
}

func writeMessage(w *codewriter.Writer, msg *schema.Message) {
	name := msg.Name.SimpleName()
	if len(msg.Options) == 0 && len(msg.Fields) == 0 && len(msg.OneOfs) == 0 && len(msg.Nested) == 0 &&
		len(msg.Extends) == 0 && len(msg.Reserved) == 0 && len(msg.ExtensionRanges) == 0 {
		w.L("message %s {}", name)
		return
	}
	w.L("message %s {", name)
	w.In(func(w *codewriter.Writer) {
		writeOptionStatements(w, msg.Options)
		for _, field := range msg.Fields {
			writeField(w, field)
		}
		for _, oneOf := range msg.OneOfs {
			w.L("oneof %s {", oneOf.Name)
			w.In(func(w *codewriter.Writer) {
				writeOptionStatements(w, oneOf.Options)
				for _, field := range oneOf.Fields {
					writeField(w, field)
				}
			})
			w.L("}")
		}
		for _, reserved := range msg.Reserved {
			w.L("reserved %s;", reserved)
		}
		for _, extensions := range msg.ExtensionRanges {
			w.L("extensions %s;", extensions)
		}
		for _, nested := range msg.Nested {
			writeType(w, nested)
		}
		for _, extend := range msg.Extends {
			writeExtend(w, extend)
		}
	})
	w.L("}")
}

func writeField(w *codewriter.Writer, field *schema.Field) {
	w.Indent()
	if field.Label != schema.LabelNone {
		w.W("%s ", field.Label)
	}
	w.W("%s %s = %d", typeRef(field.Type), field.Name, field.Tag)
	writeOptionList(w, field.Options)
	w.W(";\n")
}

func writeEnum(w *codewriter.Writer, enum *schema.Enum) {
	w.L("enum %s {", enum.Name.SimpleName())
	w.In(func(w *codewriter.Writer) {
		writeOptionStatements(w, enum.Options)
		for _, constant := range enum.Constants {
			w.Indent()
			w.W("%s = %d", constant.Name, constant.Tag)
			writeOptionList(w, constant.Options)
			w.W(";\n")
		}
		for _, reserved := range enum.Reserved {
			w.L("reserved %s;", reserved)
		}
	})
	w.L("}")
}

func writeService(w *codewriter.Writer, service *schema.Service) {
	if len(service.Options) == 0 && len(service.Rpcs) == 0 {
		w.L("service %s {}", service.Name.SimpleName())
		return
	}
	w.L("service %s {", service.Name.SimpleName())
	w.In(func(w *codewriter.Writer) {
		writeOptionStatements(w, service.Options)
		for _, rpc := range service.Rpcs {
			w.Indent()
			w.W("rpc %s (%s%s) returns (%s%s)", rpc.Name,
				stream(rpc.RequestStreaming), typeRef(rpc.RequestType),
				stream(rpc.ResponseStreaming), typeRef(rpc.ResponseType))
			if len(rpc.Options) == 0 {
				w.W(";\n")
				continue
			}
			w.W(" {\n")
			w.In(func(w *codewriter.Writer) {
				writeOptionStatements(w, rpc.Options)
			})
			w.L("}")
		}
	})
	w.L("}")
}

func writeExtend(w *codewriter.Writer, extend *schema.Extend) {
	w.L("extend %s {", typeRef(extend.Extendee))
	w.In(func(w *codewriter.Writer) {
		for _, field := range extend.Fields {
			writeField(w, field)
		}
	})
	w.L("}")
}

func writeOptionStatements(w *codewriter.Writer, options schema.Options) {
	for _, option := range options {
		w.L("option %s = %s;", option.Name, option.Value)
	}
}

func writeOptionList(w *codewriter.Writer, options schema.Options) {
	if len(options) == 0 {
		return
	}
	parts := make([]string, 0, len(options))
	for _, option := range options {
		parts = append(parts, option.Name+" = "+option.Value)
	}
	w.W(" [%s]", strings.Join(parts, ", "))
}

func stream(streaming bool) string {
	if streaming {
		return "stream "
	}
	return ""
}

func typeRef(t schema.TypeName) string {
	switch {
	case t.IsScalar():
		return string(t)
	case t.IsMap():
		return "map<" + string(t.MapKey()) + ", " + typeRef(t.MapValue()) + ">"
	default:
		return "." + string(t)
	}
}
