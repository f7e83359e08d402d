package schema

// Version is the schema version of the built-in registry. Bump it whenever an
// entity or column changes; the local cache is rebuilt on mismatch.
const Version = 12

// Entity names referenced by the engine.
const (
	Aziende      = "aziende"
	Animali      = "animali"
	PrimaNota    = "prima_nota"
	Fatture      = "fatture"
	FattureRighe = "fatture_righe"
)

// TenantColumn is the tenant foreign key used by tenant-scoped entities.
const TenantColumn = "azienda_id"

func col(name string, t ColumnType) Column { return Column{Name: name, Type: t} }
func required(name string, t ColumnType) Column { return Column{Name: name, Type: t, NotNull: true} }

func timestamps() []Column {
	return []Column{col("created_at", Timestamp), col(ColUpdatedAt, Timestamp)}
}

func tenantScoped(name string, cols []Column, fks ...ForeignKey) *Entity {
	cols = append([]Column{required(TenantColumn, Integer)}, cols...)
	cols = append(cols, timestamps()...)
	fks = append([]ForeignKey{{Column: TenantColumn, References: Aziende}}, fks...)
	return &Entity{Name: name, Columns: cols, ForeignKeys: fks, TenantColumn: TenantColumn}
}

func fk(column, references string) ForeignKey {
	return ForeignKey{Column: column, References: references}
}

// Default returns the registry of the farm-management domain.
func Default() *Registry {
	aziende := &Entity{
		Name:     Aziende,
		IsTenant: true,
		Columns: append([]Column{
			required("nome", Text),
			col("partita_iva", Text),
			col("codice_fiscale", Text),
			col("indirizzo", Text),
			col("telefono", Text),
			col("email", Text),
		}, timestamps()...),
	}

	sedi := tenantScoped("sedi", []Column{
		required("nome", Text),
		col("codice_stalla", Text),
		col("indirizzo", Text),
		col("latitudine", Real),
		col("longitudine", Real),
	})

	stabilimenti := &Entity{
		Name: "stabilimenti",
		Columns: append([]Column{
			required("sede_id", Integer),
			required("nome", Text),
			col("tipo", Text),
			col("capacita", Integer),
		}, timestamps()...),
		ForeignKeys: []ForeignKey{fk("sede_id", "sedi")},
		ScopeColumn: "sede_id",
	}

	box := &Entity{
		Name: "box",
		Columns: append([]Column{
			required("stabilimento_id", Integer),
			required("nome", Text),
			col("capacita", Integer),
			{Name: "stato", Type: Text, Default: "'libero'"},
		}, timestamps()...),
		ForeignKeys: []ForeignKey{fk("stabilimento_id", "stabilimenti")},
		ScopeColumn: "stabilimento_id",
	}

	fornitori := tenantScoped("fornitori", []Column{
		required("nome", Text),
		col("partita_iva", Text),
		col("indirizzo", Text),
		col("telefono", Text),
		col("email", Text),
		col("note", Text),
	})

	clienti := tenantScoped("clienti", []Column{
		required("nome", Text),
		col("partita_iva", Text),
		col("indirizzo", Text),
		col("telefono", Text),
		col("email", Text),
		col("note", Text),
	})

	pianoConti := tenantScoped("piano_conti", []Column{
		required("codice", Text),
		required("descrizione", Text),
		col("tipo", Text),
	})

	partite := tenantScoped("partite", []Column{
		col("sede_id", Integer),
		col("fornitore_id", Integer),
		col("cliente_id", Integer),
		required("data", Timestamp),
		required("tipo", Text),
		col("numero_capi", Integer),
		col("peso_totale", Real),
		col("note", Text),
	}, fk("sede_id", "sedi"), fk("fornitore_id", "fornitori"), fk("cliente_id", "clienti"))
	partite.PreserveOnRebuild = true

	animali := tenantScoped(Animali, []Column{
		col("sede_id", Integer),
		col("box_id", Integer),
		col("partita_id", Integer),
		required("auricolare", Text),
		col("specie", Text),
		col("razza", Text),
		col("sesso", Text),
		col("data_nascita", Timestamp),
		col("data_arrivo", Timestamp),
		col("peso_arrivo", Real),
		{Name: "stato", Type: Text, Default: "'presente'"},
		col("note", Text),
	}, fk("sede_id", "sedi"), fk("box_id", "box"), fk("partita_id", "partite"))
	animali.NaturalKey = []string{TenantColumn, "auricolare"}
	animali.PreserveOnRebuild = true

	decessi := tenantScoped("decessi", []Column{
		required("animale_id", Integer),
		required("data", Timestamp),
		col("causa", Text),
		col("note", Text),
	}, fk("animale_id", Animali))
	decessi.PreserveOnRebuild = true

	movimentazioni := tenantScoped("movimentazioni", []Column{
		required("animale_id", Integer),
		col("da_box_id", Integer),
		col("a_box_id", Integer),
		required("data", Timestamp),
		col("motivo", Text),
	}, fk("animale_id", Animali), fk("da_box_id", "box"), fk("a_box_id", "box"))
	movimentazioni.PreserveOnRebuild = true

	farmaci := tenantScoped("farmaci", []Column{
		required("nome", Text),
		col("principio_attivo", Text),
		col("tempo_sospensione_giorni", Integer),
	})

	trattamenti := tenantScoped("trattamenti", []Column{
		required("animale_id", Integer),
		required("farmaco_id", Integer),
		required("data", Timestamp),
		col("dose", Real),
		col("veterinario", Text),
	}, fk("animale_id", Animali), fk("farmaco_id", "farmaci"))
	trattamenti.PreserveOnRebuild = true

	terreni := tenantScoped("terreni", []Column{
		required("nome", Text),
		col("superficie_ha", Real),
		col("foglio", Text),
		col("particella", Text),
		{Name: "in_affitto", Type: Boolean, Default: "0"},
	})

	lavorazioni := tenantScoped("lavorazioni", []Column{
		required("terreno_id", Integer),
		required("data", Timestamp),
		required("tipo", Text),
		col("costo", Real),
	}, fk("terreno_id", "terreni"))

	raccolti := tenantScoped("raccolti", []Column{
		required("terreno_id", Integer),
		required("data", Timestamp),
		required("prodotto", Text),
		col("quantita", Real),
		col("unita", Text),
	}, fk("terreno_id", "terreni"))

	attrezzature := tenantScoped("attrezzature", []Column{
		required("nome", Text),
		col("tipo", Text),
		col("marca", Text),
		col("modello", Text),
		col("targa", Text),
		col("data_acquisto", Timestamp),
		col("valore", Real),
	})

	contrattiSoccida := tenantScoped("contratti_soccida", []Column{
		required("soccidante_id", Integer),
		required("data_inizio", Timestamp),
		col("data_fine", Timestamp),
		col("quota_percentuale", Real),
		col("condizioni", JSON),
	}, fk("soccidante_id", "fornitori"))

	fatture := tenantScoped(Fatture, []Column{
		col("fornitore_id", Integer),
		col("cliente_id", Integer),
		required("numero", Text),
		required("data", Timestamp),
		required("tipo", Text),
		col("imponibile", Real),
		col("iva", Real),
		col("totale", Real),
		{Name: "pagata", Type: Boolean, Default: "0"},
	}, fk("fornitore_id", "fornitori"), fk("cliente_id", "clienti"))
	fatture.PreserveOnRebuild = true

	fattureRighe := &Entity{
		Name: FattureRighe,
		Columns: append([]Column{
			required("fattura_id", Integer),
			required("descrizione", Text),
			col("quantita", Real),
			col("prezzo_unitario", Real),
			col("aliquota_iva", Real),
			col("totale", Real),
		}, timestamps()...),
		ForeignKeys:       []ForeignKey{fk("fattura_id", Fatture)},
		ScopeColumn:       "fattura_id",
		PreserveOnRebuild: true,
	}

	pagamenti := tenantScoped("pagamenti", []Column{
		required("fattura_id", Integer),
		required("data", Timestamp),
		required("importo", Real),
		col("metodo", Text),
	}, fk("fattura_id", Fatture))
	pagamenti.PreserveOnRebuild = true

	primaNota := tenantScoped(PrimaNota, []Column{
		required("data", Timestamp),
		required("descrizione", Text),
		required("importo", Real),
		required("tipo", Text),
		col("conto_id", Integer),
		col("contropartita_id", Integer),
		col("contropartita_nome", Text),
		col("fattura_id", Integer),
	}, fk("conto_id", "piano_conti"), fk("contropartita_id", "piano_conti"), fk("fattura_id", Fatture))
	primaNota.Endpoint = "/prima-nota"
	primaNota.PreserveOnRebuild = true

	impostazioni := &Entity{
		Name:      "impostazioni",
		LocalOnly: true,
		Columns: []Column{
			required("chiave", Text),
			col("valore", Text),
			col(ColUpdatedAt, Timestamp),
		},
	}

	return MustNew(Version,
		aziende, sedi, stabilimenti, box, fornitori, clienti, pianoConti,
		partite, animali, decessi, movimentazioni, farmaci, trattamenti,
		terreni, lavorazioni, raccolti, attrezzature, contrattiSoccida,
		fatture, fattureRighe, pagamenti, primaNota, impostazioni,
	)
}
