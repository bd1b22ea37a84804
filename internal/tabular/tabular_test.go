package tabular

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const sample = "h1,h2,h3\na,b,false\nd,e,f\ng,h,False"

func mustRead(t *testing.T, input string, opts Options) *Table {
	t.Helper()
	table, err := Read(strings.NewReader(input), opts)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	return table
}

func TestRead_StripAndFalsify_Maps(t *testing.T) {
	table := mustRead(t, sample, Options{StripAndFalsify: true})

	want := []map[string]Value{
		{"h1": "a", "h2": "b", "h3": false},
		{"h1": "d", "h2": "e", "h3": "f"},
		{"h1": "g", "h2": "h", "h3": false},
	}
	if got := table.Maps(); !reflect.DeepEqual(got, want) {
		t.Errorf("Maps() = %v, want %v", got, want)
	}
}

func TestRead_NoFalsify_PreservesVerbatim(t *testing.T) {
	table := mustRead(t, sample, Options{})

	want := []map[string]Value{
		{"h1": "a", "h2": "b", "h3": "false"},
		{"h1": "d", "h2": "e", "h3": "f"},
		{"h1": "g", "h2": "h", "h3": "False"},
	}
	if got := table.Maps(); !reflect.DeepEqual(got, want) {
		t.Errorf("Maps() = %v, want %v", got, want)
	}
}

func TestRead_Lists(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want [][]Value
	}{
		{
			name: "falsify on",
			opts: Options{StripAndFalsify: true},
			want: [][]Value{
				{"a", "b", false},
				{"d", "e", "f"},
				{"g", "h", false},
			},
		},
		{
			name: "falsify off",
			opts: Options{},
			want: [][]Value{
				{"a", "b", "false"},
				{"d", "e", "f"},
				{"g", "h", "False"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := mustRead(t, sample, tt.opts)
			if got := table.Lists(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Lists() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRead_SkipsInitialSpace(t *testing.T) {
	table := mustRead(t, "h1, h2\na, b", Options{})

	if want := []string{"h1", "h2"}; !reflect.DeepEqual(table.Columns, want) {
		t.Errorf("Columns = %v, want %v", table.Columns, want)
	}
	want := [][]Value{{"a", "b"}}
	if got := table.Lists(); !reflect.DeepEqual(got, want) {
		t.Errorf("Lists() = %v, want %v", got, want)
	}
}

func TestRead_DropsAllEmptyRows(t *testing.T) {
	input := "h1,h2,h3\na,b,c\n,,\nd,e,f"
	table := mustRead(t, input, Options{})

	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
	want := [][]Value{{"a", "b", "c"}, {"d", "e", "f"}}
	if got := table.Lists(); !reflect.DeepEqual(got, want) {
		t.Errorf("Lists() = %v, want %v", got, want)
	}
}

func TestRead_DropsRowsEmptyAfterFilter(t *testing.T) {
	// The second row only has a value in h2; projecting to h1,h3 leaves
	// it entirely missing, so it must disappear.
	input := "h1,h2,h3\na,b,c\n,x,\nd,e,f"
	table := mustRead(t, input, Options{FilterColumns: []string{"h1", "h3"}})

	want := [][]Value{{"a", "c"}, {"d", "f"}}
	if got := table.Lists(); !reflect.DeepEqual(got, want) {
		t.Errorf("Lists() = %v, want %v", got, want)
	}
}

func TestRead_IdentifierCoercion(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  [][]Value
	}{
		{
			name:  "all integers coerced",
			input: "customer_id,name\n1,alice\n2,bob",
			want:  [][]Value{{int64(1), "alice"}, {int64(2), "bob"}},
		},
		{
			name:  "one bad cell leaves whole column as strings",
			input: "customer_id,name\n1,alice\n2,bob\nx,carol",
			want:  [][]Value{{"1", "alice"}, {"2", "bob"}, {"x", "carol"}},
		},
		{
			name:  "missing cell leaves whole column as strings",
			input: "customer_id,name\n1,alice\n,bob",
			want:  [][]Value{{"1", "alice"}, {nil, "bob"}},
		},
		{
			name:  "suffix only matches _id columns",
			input: "grid,order_id\n9,7",
			want:  [][]Value{{"9", int64(7)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := mustRead(t, tt.input, Options{})
			if got := table.Lists(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Lists() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRead_CoercedCellsSurviveFalsify(t *testing.T) {
	// Falsify only touches string cells; coerced int64 values pass
	// through unchanged.
	table := mustRead(t, "user_id,flag\n10,false", Options{StripAndFalsify: true})

	want := [][]Value{{int64(10), false}}
	if got := table.Lists(); !reflect.DeepEqual(got, want) {
		t.Errorf("Lists() = %v, want %v", got, want)
	}
}

func TestRead_FilterColumns(t *testing.T) {
	table := mustRead(t, sample, Options{FilterColumns: []string{"h3", "h1"}})

	if want := []string{"h3", "h1"}; !reflect.DeepEqual(table.Columns, want) {
		t.Errorf("Columns = %v, want %v", table.Columns, want)
	}
	want := [][]Value{{"false", "a"}, {"f", "d"}, {"False", "g"}}
	if got := table.Lists(); !reflect.DeepEqual(got, want) {
		t.Errorf("Lists() = %v, want %v", got, want)
	}
}

func TestRead_FilterUnknownColumn(t *testing.T) {
	_, err := Read(strings.NewReader(sample), Options{FilterColumns: []string{"h1", "nope"}})
	if !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("Read() error = %v, want ErrColumnNotFound", err)
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("error should name the missing column: %v", err)
	}
}

func TestRead_LowerCaseColumns(t *testing.T) {
	input := " H1 ,H2\na,b"
	table := mustRead(t, input, Options{
		FilterColumns:    []string{"H1"},
		LowerCaseColumns: true,
	})

	if want := []string{"h1"}; !reflect.DeepEqual(table.Columns, want) {
		t.Errorf("Columns = %v, want %v", table.Columns, want)
	}
	want := []map[string]Value{{"h1": "a"}}
	if got := table.Maps(); !reflect.DeepEqual(got, want) {
		t.Errorf("Maps() = %v, want %v", got, want)
	}
}

func TestRead_HeaderTrimmedNotFalsified(t *testing.T) {
	// A header literally named "false" stays a string column name.
	table := mustRead(t, " false ,h2\nx,y", Options{StripAndFalsify: true})

	if want := []string{"false", "h2"}; !reflect.DeepEqual(table.Columns, want) {
		t.Errorf("Columns = %v, want %v", table.Columns, want)
	}
}

func TestRead_DuplicateHeadersLastWins(t *testing.T) {
	// Undefined by contract; the implementation keeps the right-most
	// column for both projection and map output.
	table := mustRead(t, "id,id\nfirst,second", Options{FilterColumns: []string{"id"}})

	want := [][]Value{{"second"}}
	if got := table.Lists(); !reflect.DeepEqual(got, want) {
		t.Errorf("Lists() = %v, want %v", got, want)
	}
}

func TestRead_RaggedRowsFail(t *testing.T) {
	_, err := Read(strings.NewReader("h1,h2,h3\na,b"), Options{})
	if err == nil {
		t.Fatal("Read() expected error for ragged row")
	}
}

func TestRead_EmptyStream(t *testing.T) {
	_, err := Read(strings.NewReader(""), Options{})
	if !errors.Is(err, ErrEmptyStream) {
		t.Fatalf("Read() error = %v, want ErrEmptyStream", err)
	}
}

func TestRead_HeaderOnly(t *testing.T) {
	table := mustRead(t, "h1,h2", Options{})
	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0", table.Len())
	}
	if got := table.Maps(); len(got) != 0 {
		t.Errorf("Maps() = %v, want empty", got)
	}
}
