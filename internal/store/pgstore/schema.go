package pgstore

// schemaSQL matches the tables gormstore migrates, including constraint names used for conflict detection.
const schemaSQL = `
create table if not exists listings (
	id bigserial primary key,
	slug varchar(255) not null,
	title varchar(255) not null,
	description text not null default '',
	price_per_night_cents bigint not null check (price_per_night_cents >= 0),
	location varchar(255) not null default '',
	host_id text not null,
	created_at timestamptz not null default now(),
	updated_at timestamptz not null default now(),
	constraint uniq_listings_slug unique (slug)
);
create index if not exists idx_listings_host on listings(host_id);
create index if not exists idx_listings_created on listings(created_at);

create table if not exists reviews (
	id bigserial primary key,
	listing_id bigint not null references listings(id) on delete cascade,
	reviewer_id text not null,
	rating integer not null check (rating between 1 and 5),
	comment text not null default '',
	created_at timestamptz not null default now()
);
create index if not exists idx_reviews_listing on reviews(listing_id);

create table if not exists bookings (
	id bigserial primary key,
	listing_id bigint not null,
	guest_id text not null,
	check_in timestamptz not null,
	check_out timestamptz not null,
	total_price_cents bigint not null,
	currency varchar(3) not null,
	created_at timestamptz not null default now(),
	constraint uniq_bookings_stay unique (listing_id, guest_id, check_in, check_out),
	constraint chk_bookings_dates check (check_out > check_in)
);
create index if not exists idx_bookings_guest on bookings(guest_id);

create table if not exists payments (
	tx_ref varchar(100) not null,
	booking_id bigint,
	payer_user_id text not null default '',
	payer_email text not null,
	payer_first_name text not null default '',
	payer_last_name text not null default '',
	gateway_tx_id varchar(100) not null default '',
	amount_cents bigint not null,
	currency varchar(3) not null,
	status varchar(10) not null check (status in ('pending', 'success', 'failed')),
	description text not null default '',
	metadata jsonb not null default '{}'::jsonb,
	created_at timestamptz not null default now(),
	updated_at timestamptz not null default now(),
	constraint payments_pkey primary key (tx_ref),
	constraint fk_payments_booking foreign key (booking_id) references bookings(id) on delete restrict
);
create index if not exists idx_payments_booking on payments(booking_id);
create index if not exists idx_payments_status_created on payments(status, created_at);
`
