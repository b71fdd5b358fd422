package collection_test

import (
	"fmt"

	"github.com/frostime/sy-query-view/pkg/collection"
)

func Example() {
	rows := collection.FromMaps([]map[string]any{
		{"id": "a", "type": "d"},
		{"id": "b", "type": "p"},
		{"id": "a", "type": "d"},
	})

	unique := rows.UniqueBy("id")
	fmt.Println(unique.Len(), unique.Pick("id").Values())

	unique.GroupBy("type", func(key string, g *collection.Collection) {
		fmt.Println(key, g.Len())
	})
	// Output:
	// 2 [a b]
	// d 1
	// p 1
}

func ExampleCollection_AddCol() {
	rows := collection.FromMaps([]map[string]any{{"id": "1"}, {"id": "2"}, {"id": "3"}})
	scored, err := rows.AddCol(collection.Columns{"score": []int{1, 2, 3}})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(scored.Pick("score").Values())

	_, err = rows.AddCol(collection.Columns{"score": []int{1, 2}})
	fmt.Println(err)
	// Output:
	// [1 2 3]
	// SHAPE_MISMATCH: column score has length 2, collection has length 3
}
