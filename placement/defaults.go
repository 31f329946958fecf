package placement

// DefaultVersion identifies the built-in table.
const DefaultVersion = "form-2024.1"

// Default returns the built-in table for the bundled seven-page form.
func Default() *Table {
	return MustCompile(File{
		Version: DefaultVersion,
		Fields: []FieldSpec{
			{Name: "birthYear", Directives: []DirectiveSpec{
				at(5, 468, 452),
				at(5, 661, 441),
				at(0, 668, 261),
			}},
			{Name: "firstName", Directives: []DirectiveSpec{
				at(5, 294, 343),
				at(4, 97, 103),
				at(4, 82, 172),
				at(4, 142, 222),
				rotated(at(3, 397, 201), 90),
				at(1, 51, 329),
				at(1, 51, 396),
				at(1, 120, 508),
				at(0, 196, 436),
				at(0, 661, 301),
				at(0, 606.66, 219.3),
			}},
			{Name: "lastName", Directives: []DirectiveSpec{
				at(4, 121, 172),
				at(4, 182, 222),
				rotated(at(3, 397, 150), 90),
				at(0, 244, 436),
				at(0, 589, 234),
			}},
			{Name: "photo", Directives: []DirectiveSpec{
				image(at(0, 556.66, 566.66), 230, 226.66, ""),
				image(at(4, 620, 465), 176, 254.61, ""),
				image(at(6, 431, 570), 178, 260, ""),
			}},
			{Name: "crossOverlay", Directives: []DirectiveSpec{
				image(at(6, 431, 570), 178, 260, "cross.png"),
			}},
			{Name: "age", Directives: []DirectiveSpec{
				rotated(at(3, 407, 450), 90),
				at(3, 693, 315),
				rotated(at(2, 146, 468), 90),
				rotated(at(2, 680, 480), 90),
				rotated(at(1, 578, 485), 90),
				at(1, 305, 247),
				at(1, 318, 152),
				at(0, 140, 450),
				at(0, 587, 248),
			}},
			{Name: "assistant", Directives: []DirectiveSpec{
				at(0, 610, 276),
			}},
		},
	})
}

func at(page int, x, y float64) DirectiveSpec {
	return DirectiveSpec{Page: &page, X: &x, Y: &y}
}

func rotated(d DirectiveSpec, deg float64) DirectiveSpec {
	d.Rotate = deg
	return d
}

func image(d DirectiveSpec, w, h float64, src string) DirectiveSpec {
	d.Kind = "image"
	d.Width = w
	d.Height = h
	d.Src = src
	return d
}
